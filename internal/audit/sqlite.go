package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "topicbot/pkg/logx"
)

func timeNow() time.Time { return time.Now().UTC() }

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    at      TEXT NOT NULL,
    actor   INTEGER NOT NULL,
    command TEXT NOT NULL,
    subject TEXT NOT NULL,
    detail  TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_at ON audit(at);
`

type sqliteLog struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Log, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("audit.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteLog{db: db, log: log}, nil
}

func (l *sqliteLog) Append(ctx context.Context, e Entry) error {
	if l == nil || l.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = timeNow()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor, command, subject, detail) VALUES(?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Actor, e.Command, e.Subject, nullStr(e.Detail),
	)
	return err
}

func (l *sqliteLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
