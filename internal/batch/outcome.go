package batch

import (
	"time"

	"topicbot/internal/registry"
)

// Item is one successfully processed topic in a pass outcome.
type Item struct {
	Key       string
	Slug      string
	Name      string
	Kind      registry.Kind
	ChatID    int64
	ThreadID  int
	Delivered bool
}

// Failure is one isolated per-topic failure (processing or delivery).
type Failure struct {
	Key  string
	Slug string
	Err  string
}

// Outcome aggregates one whole batch pass for the summary builder.
type Outcome struct {
	Op     registry.Op
	PassID string

	StartedAt time.Time
	Duration  time.Duration

	// Reported holds topics whose per-record operation produced a payload,
	// in delivery order. Delivered marks whether dispatch succeeded.
	Reported []Item

	// Skipped tallies ineligible topic slugs by reason.
	Skipped map[Reason][]string

	// Failures are per-record operation errors; they never abort the pass.
	Failures []Failure

	// DeliveryFailures are payloads the dispatcher gave up on.
	DeliveryFailures []Failure

	// FlaggedChats lists chats where every processed topic failed,
	// suggesting the chat itself vanished (deleted or migrated) rather
	// than N independent per-topic defects.
	FlaggedChats []int64

	// AutoSnoozed lists topics the silent-runs machine put to sleep.
	AutoSnoozed []string
}

func (o *Outcome) SkippedCount() int {
	n := 0
	for _, ss := range o.Skipped {
		n += len(ss)
	}
	return n
}

// silentRunStep is the pure state-machine step applied to each checkup-
// processed topic inside the end-of-pass store mutation: the counter resets
// when activity is newer than the last processed run, otherwise increments;
// hitting the threshold snoozes the topic and resets the counter. This is
// the system's only autonomous state transition.
func silentRunStep(r *registry.Record, now time.Time, th Thresholds) (autoSnoozed bool) {
	active := r.LastActivityAt != nil &&
		(r.LastCheckupAt == nil || r.LastActivityAt.After(*r.LastCheckupAt))
	if active {
		r.SilentRuns = 0
		return false
	}
	r.SilentRuns++
	if r.SilentRuns < th.SpamThreshold {
		return false
	}
	until := now.Add(th.AutoSnooze).UTC()
	r.Status = registry.StatusSnoozed
	r.SnoozedUntil = &until
	r.SilentRuns = 0
	return true
}
