// Package scheduler triggers the recurring batch passes on cron specs and
// fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "topicbot/pkg/logx"
)

// Job is one schedulable unit of work. Errors are logged, never fatal to
// the schedule.
type Job func(ctx context.Context) error

type entry struct {
	name string
	job  Job

	mu      sync.Mutex
	running bool
}

// Service wraps robfig/cron with overlap-skip per entry: a trigger firing
// while the previous run of the same entry is still going is dropped.
type Service struct {
	cron *cron.Cron
	log  logx.Logger

	mu      sync.Mutex
	baseCtx context.Context
	started bool
}

func New(timezone string, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler: timezone %q: %w", tz, err)
		}
		loc = l
	}
	return &Service{
		cron: cron.New(cron.WithLocation(loc)),
		log:  log,
	}, nil
}

// AddCron registers job under a standard 5-field cron spec.
func (s *Service) AddCron(name, spec string, job Job) error {
	e := &entry{name: name, job: job}
	_, err := s.cron.AddFunc(spec, func() { s.fire(e) })
	if err != nil {
		return fmt.Errorf("scheduler: %s: bad spec %q: %w", name, spec, err)
	}
	s.log.Info("schedule registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// AddEvery registers job on a fixed interval.
func (s *Service) AddEvery(name string, every time.Duration, job Job) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: %s: interval must be > 0", name)
	}
	return s.AddCron(name, "@every "+every.String(), job)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts triggering and waits for running jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) fire(e *entry) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		s.log.Debug("schedule trigger skipped (previous run still going)", logx.String("name", e.name))
		return
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled job",
				logx.String("name", e.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	if err := e.job(ctx); err != nil {
		s.log.Warn("scheduled job failed", logx.String("name", e.name), logx.Duration("dur", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("scheduled job finished", logx.String("name", e.name), logx.Duration("dur", time.Since(start)))
}
