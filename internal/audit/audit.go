// Package audit keeps an append-only trail of operator and batch actions.
//
// Drivers:
//   - "file": newline-delimited JSON, owner-only permissions
//   - "sqlite": a SQLite database file
//
// An empty or "none" driver disables auditing (Open returns nil, nil).
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "topicbot/pkg/logx"
)

var ErrDisabled = errors.New("audit disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one action against the registry.
// Keep it compact and schema-stable.
type Entry struct {
	At      time.Time `json:"at"`
	Actor   int64     `json:"actor"`
	Command string    `json:"command"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail,omitempty"`
}

// Log is the minimal audit API used by the rest of the system.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Open initializes the configured audit log.
// It returns (nil, nil) if auditing is disabled.
func Open(cfg Config, log logx.Logger) (Log, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}
