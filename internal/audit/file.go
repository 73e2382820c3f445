package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "topicbot/pkg/logx"
)

// fileLog is the dependency-free audit backend: one JSON object per line,
// opened in append mode. Permissions are re-asserted after every append so
// an external chmod can't silently widen the trail.
type fileLog struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

func openFile(cfg Config, log logx.Logger) (Log, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("audit.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileLog{log: log, path: path, f: f}, nil
}

func (l *fileLog) Append(ctx context.Context, e Entry) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("audit file closed")
	}
	if e.At.IsZero() {
		e.At = timeNow()
	}
	if err := json.NewEncoder(l.f).Encode(e); err != nil {
		return err
	}
	if err := l.f.Chmod(0o600); err != nil {
		l.log.Debug("audit chmod failed", logx.Err(err))
	}
	return nil
}

func (l *fileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
