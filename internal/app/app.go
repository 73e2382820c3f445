// Package app wires the bot together: config, logging, registry store,
// dispatcher, batch runner, scheduler, and the audit trail.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"topicbot/internal/audit"
	"topicbot/internal/batch"
	"topicbot/internal/config"
	"topicbot/internal/dispatch"
	"topicbot/internal/registry"
	"topicbot/internal/report"
	"topicbot/internal/scheduler"
	"topicbot/internal/transport/telegram"
	logx "topicbot/pkg/logx"
)

// Collaborators are the external per-topic functions the batch engine
// drives. Defaults (see generators.go) are installed for any left nil.
type Collaborators struct {
	Digest   batch.RecordFunc
	Checkup  batch.RecordFunc
	Activity batch.ActivityProbe
}

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store  *registry.Store
	audit  audit.Log
	sender dispatch.Sender
	disp   *dispatch.Dispatcher
	runner *batch.Runner
	sched  *scheduler.Service

	collab Collaborators

	mu           sync.Mutex
	cachedSecret string
	started      bool
	cancel       context.CancelFunc
	watchWG      sync.WaitGroup
}

func New(cfgPath string, collab Collaborators) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	store := registry.Open(cfg.Registry.Path, log.With(logx.String("comp", "registry")))

	var auditLog audit.Log
	if cfg.Audit != nil {
		auditLog, err = audit.Open(audit.Config{
			Driver:      cfg.Audit.Driver,
			Path:        cfg.Audit.Path,
			BusyTimeout: config.DurationOr(cfg.Audit.BusyTimeout, 0),
		}, log.With(logx.String("comp", "audit")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
	}

	sender, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 0),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	disp := dispatch.New(dispatch.Config{
		MinInterval:   config.DurationOr(cfg.Dispatch.MinInterval, 0),
		SameChatDelay: config.DurationOr(cfg.Dispatch.SameChatDelay, 0),
	}, sender, store, log.With(logx.String("comp", "dispatch")))

	runner := batch.NewRunner(store, disp, thresholds(cfg), log.With(logx.String("comp", "batch")))

	sched, err := scheduler.New(cfg.Schedule.Timezone, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		store:  store,
		audit:  auditLog,
		sender: sender,
		disp:   disp,
		runner: runner,
		sched:  sched,
		collab: collab,
	}
	a.installDefaultCollaborators()
	return a, nil
}

func thresholds(cfg *config.Config) batch.Thresholds {
	return batch.Thresholds{
		InactiveAfter:   config.DurationOr(cfg.Batch.InactiveAfter, 0),
		CheckupCooldown: config.DurationOr(cfg.Batch.CheckupCooldown, 0),
		PassCooldown:    config.DurationOr(cfg.Batch.PassCooldown, 0),
		SpamThreshold:   cfg.Batch.SpamThreshold,
		AutoSnooze:      config.DurationOr(cfg.Batch.AutoSnooze, 0),
	}
}

func (a *App) Store() *registry.Store { return a.store }
func (a *App) Logger() logx.Logger    { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	cfg := a.cfgMgr.Get()

	digestSpec := cfg.Schedule.DigestCron
	if digestSpec == "" {
		digestSpec = "0 9 * * *"
	}
	if err := a.sched.AddCron("digest", digestSpec, func(ctx context.Context) error {
		return a.RunPass(ctx, registry.OpDigest)
	}); err != nil {
		return err
	}
	if err := a.sched.AddEvery("checkup", config.DurationOr(cfg.Schedule.CheckupEvery, 4*time.Hour), func(ctx context.Context) error {
		return a.RunPass(ctx, registry.OpCheckup)
	}); err != nil {
		return err
	}

	// Reload logging on config change; everything else reads its config
	// fresh per pass.
	sub := a.cfgMgr.Subscribe(1)
	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgMgr.Watch(runCtx)
	}()
	go func() {
		defer a.watchWG.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case c, ok := <-sub:
				if !ok {
					return
				}
				a.logSvc.Apply(logx.Config{
					Level:   c.Logging.Level,
					Console: c.Logging.Console,
					File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
				})
			}
		}
	}()

	a.sched.Start(runCtx)
	a.log.Info("topicbot started", logx.String("registry", cfg.Registry.Path))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.sched.Stop(ctx)
	a.watchWG.Wait()
	if a.audit != nil {
		_ = a.audit.Close()
	}
	a.log.Info("topicbot stopped")
	return a.logSvc.Close()
}

// RunPass executes one batch pass for op, records it in the audit trail,
// and sends the bounded summary to the configured summary chat.
func (a *App) RunPass(ctx context.Context, op registry.Op) error {
	gen := a.collab.Checkup
	if op == registry.OpDigest {
		gen = a.collab.Digest
	}

	out, err := a.runner.Run(ctx, op, gen, a.collab.Activity)
	switch {
	case errors.Is(err, batch.ErrPassCooldown), errors.Is(err, batch.ErrDigestsDisabled):
		a.log.Info("batch pass skipped", logx.String("op", string(op)), logx.Err(err))
		return nil
	case err != nil:
		return err
	}

	a.recordPass(ctx, out)

	cfg := a.cfgMgr.Get()
	if cfg.Telegram.SummaryChatID != 0 {
		to := dispatch.Target{ChatID: cfg.Telegram.SummaryChatID}
		if serr := a.sender.Send(ctx, to, dispatch.Payload{Text: report.Build(out)}); serr != nil {
			a.log.Warn("summary delivery failed", logx.Int64("chat_id", to.ChatID), logx.Err(serr))
		}
	}
	return nil
}

func (a *App) recordPass(ctx context.Context, out *batch.Outcome) {
	if a.audit == nil {
		return
	}
	e := audit.Entry{
		At:      out.StartedAt,
		Command: string(out.Op),
		Subject: out.PassID,
		Detail: fmt.Sprintf("reported=%d skipped=%d failed=%d delivery_failed=%d flagged=%d",
			len(out.Reported), out.SkippedCount(), len(out.Failures), len(out.DeliveryFailures), len(out.FlaggedChats)),
	}
	if err := a.audit.Append(ctx, e); err != nil {
		a.log.Warn("audit append failed", logx.Err(err))
	}
}
