package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SupportedVersion is the newest document schema this build understands.
// Documents with a higher version are refused; lower versions are migrated
// forward on load.
const SupportedVersion = 3

// Limits on stored fields. Oversized values fail record validation.
const (
	MaxNameRunes         = 64
	MaxSlugLen           = 48
	MaxDeliveryErrorLen  = 256
	MaxExtrasBytes       = 2048
	DefaultMaxTopics     = 200
	DefaultCapsuleSchema = 1
)

// Kind tags what a tracked topic is for. Closed set.
type Kind string

const (
	KindProject Kind = "project"
	KindTracker Kind = "tracker"
	KindJournal Kind = "journal"
)

func (k Kind) Valid() bool {
	switch k {
	case KindProject, KindTracker, KindJournal:
		return true
	}
	return false
}

// Status is the topic lifecycle state. Archived is terminal but retained;
// records are never physically deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusSnoozed  Status = "snoozed"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSnoozed, StatusArchived:
		return true
	}
	return false
}

// Record is one tracked forum topic.
//
// ChatID+ThreadID form the immutable lookup key. Slug is a second, stable
// human-readable identifier: it is generated once when the record is created
// and never reassigned, even if the chat/thread key is later forgotten.
type Record struct {
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id"`

	Slug string `json:"slug"`
	Name string `json:"name"`

	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`

	CapsuleVersion int `json:"capsule_version"`

	LastActivityAt      *time.Time `json:"last_activity_at,omitempty"`
	LastCheckupAt       *time.Time `json:"last_checkup_at,omitempty"`
	LastCheckupReportAt *time.Time `json:"last_checkup_report_at,omitempty"`
	LastDigestAt        *time.Time `json:"last_digest_at,omitempty"`

	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`

	IgnoredChecks []string `json:"ignored_checks,omitempty"`

	// SilentRuns counts consecutive checkup runs with no intervening user
	// activity. Reaching the configured threshold auto-snoozes the topic.
	SilentRuns int `json:"silent_runs,omitempty"`

	LastDeliveryError *string `json:"last_delivery_error,omitempty"`

	JobID *string `json:"job_id,omitempty"`

	Extras map[string]string `json:"extras,omitempty"`
}

// Key returns the record's composite lookup key.
func (r *Record) Key() string { return Key(r.ChatID, r.ThreadID) }

// Key formats the composite "chatID:threadID" lookup key.
func Key(chatID int64, threadID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(threadID)
}

// ParseKey splits a composite key back into chat and thread ids.
func ParseKey(key string) (chatID int64, threadID int, err error) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return 0, 0, fmt.Errorf("bad topic key %q", key)
	}
	chatID, err = strconv.ParseInt(key[:i], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad topic key %q: %w", key, err)
	}
	threadID, err = strconv.Atoi(key[i+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("bad topic key %q: %w", key, err)
	}
	return chatID, threadID, nil
}

// Snoozed reports whether the record is snoozed at the given instant.
func (r *Record) Snoozed(now time.Time) bool {
	return r.SnoozedUntil != nil && r.SnoozedUntil.After(now)
}

// Document is the singleton registry document.
type Document struct {
	Version int `json:"version"`

	Admins []int64 `json:"admins"`

	// Secret signs inline callback actions.
	Secret string `json:"secret"`

	DigestsEnabled bool `json:"digests_enabled"`

	MaxTopics int `json:"max_topics"`

	LastBatchRunAt *time.Time `json:"last_batch_run_at,omitempty"`

	Topics map[string]*Record `json:"topics"`
}

// IsAdmin reports whether userID is a registry administrator.
func (d *Document) IsAdmin(userID int64) bool {
	for _, id := range d.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// Topic returns the record for the composite key, or nil.
func (d *Document) Topic(chatID int64, threadID int) *Record {
	if d.Topics == nil {
		return nil
	}
	return d.Topics[Key(chatID, threadID)]
}

// Keys returns all topic keys in sorted order, so enumeration (and therefore
// delivery) order is stable across passes.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.Topics))
	for k := range d.Topics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
