package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full bot configuration. JSON and YAML are both accepted;
// YAML is coerced to JSON so one strict decoder covers both. All durations
// are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Registry RegistryConfig `json:"registry"`

	Batch    BatchConfig    `json:"batch,omitempty"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`

	// Audit is optional; omitting the section disables the trail.
	Audit *AuditConfig `json:"audit,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout. Default "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SummaryChatID receives the pass summary message. 0 disables it.
	SummaryChatID int64 `json:"summary_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"` // trace|debug|info|warn|error
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type RegistryConfig struct {
	// Path of the registry JSON document.
	Path string `json:"path"`
}

// BatchConfig tunes eligibility and the silent-runs machine.
//
// Defaults (when fields are omitted/zero):
//   - inactive_after: "168h" (7 days)
//   - checkup_cooldown: "24h"
//   - pass_cooldown: "1h"
//   - spam_threshold: 3
//   - auto_snooze: "720h" (30 days)
type BatchConfig struct {
	InactiveAfter   string `json:"inactive_after,omitempty"`
	CheckupCooldown string `json:"checkup_cooldown,omitempty"`
	PassCooldown    string `json:"pass_cooldown,omitempty"`
	SpamThreshold   int    `json:"spam_threshold,omitempty"`
	AutoSnooze      string `json:"auto_snooze,omitempty"`
}

// DispatchConfig tunes outbound pacing.
//
// Defaults: min_interval "1s", same_chat_delay "3s".
type DispatchConfig struct {
	MinInterval   string `json:"min_interval,omitempty"`
	SameChatDelay string `json:"same_chat_delay,omitempty"`
}

// ScheduleConfig drives the recurring passes.
//
// Defaults: digest_cron "0 9 * * *", checkup_every "4h", timezone UTC.
type ScheduleConfig struct {
	DigestCron   string `json:"digest_cron,omitempty"`
	CheckupEvery string `json:"checkup_every,omitempty"`
	Timezone     string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
}

type AuditConfig struct {
	Driver      string `json:"driver"` // "file" or "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// Validate checks required fields and that every duration string parses.
// It runs before a config is committed or published.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Registry.Path) == "" {
		return errors.New("registry.path is required")
	}
	if c.Audit != nil && strings.TrimSpace(c.Audit.Path) == "" {
		return errors.New("audit.path is required when audit is configured")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"batch.inactive_after", c.Batch.InactiveAfter},
		{"batch.checkup_cooldown", c.Batch.CheckupCooldown},
		{"batch.pass_cooldown", c.Batch.PassCooldown},
		{"batch.auto_snooze", c.Batch.AutoSnooze},
		{"dispatch.min_interval", c.Dispatch.MinInterval},
		{"dispatch.same_chat_delay", c.Dispatch.SameChatDelay},
		{"schedule.checkup_every", c.Schedule.CheckupEvery},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Batch.SpamThreshold < 0 {
		return errors.New("batch.spam_threshold must be >= 0")
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	return nil
}
