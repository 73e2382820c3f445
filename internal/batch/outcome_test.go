package batch

import (
	"testing"
	"time"

	"topicbot/internal/registry"
)

func TestSilentRunStep(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	th := Thresholds{}.withDefaults()

	t.Run("activity resets counter", func(t *testing.T) {
		r := baseRecord(now)
		r.SilentRuns = 2
		r.LastCheckupAt = tp(now.Add(-24 * time.Hour))
		r.LastActivityAt = tp(now.Add(-time.Hour))
		if silentRunStep(r, now, th) {
			t.Fatal("active topic must not be snoozed")
		}
		if r.SilentRuns != 0 {
			t.Fatalf("SilentRuns = %d, want reset", r.SilentRuns)
		}
	})

	t.Run("silence increments", func(t *testing.T) {
		r := baseRecord(now)
		r.LastActivityAt = tp(now.Add(-48 * time.Hour))
		r.LastCheckupAt = tp(now.Add(-24 * time.Hour))
		if silentRunStep(r, now, th) {
			t.Fatal("should not snooze at 1 silent run")
		}
		if r.SilentRuns != 1 {
			t.Fatalf("SilentRuns = %d, want 1", r.SilentRuns)
		}
	})

	t.Run("threshold snoozes and resets", func(t *testing.T) {
		r := baseRecord(now)
		r.SilentRuns = th.SpamThreshold - 1
		r.LastActivityAt = tp(now.Add(-48 * time.Hour))
		r.LastCheckupAt = tp(now.Add(-24 * time.Hour))
		if !silentRunStep(r, now, th) {
			t.Fatal("expected auto-snooze at threshold")
		}
		if r.Status != registry.StatusSnoozed {
			t.Fatalf("Status = %q", r.Status)
		}
		if r.SnoozedUntil == nil || !r.SnoozedUntil.Equal(now.Add(th.AutoSnooze)) {
			t.Fatalf("SnoozedUntil = %v", r.SnoozedUntil)
		}
		if r.SilentRuns != 0 {
			t.Fatalf("SilentRuns = %d, want reset after snooze", r.SilentRuns)
		}
	})

	t.Run("no activity at all counts as silent", func(t *testing.T) {
		r := baseRecord(now)
		r.LastActivityAt = nil
		if silentRunStep(r, now, th) {
			t.Fatal("first silent run must not snooze")
		}
		if r.SilentRuns != 1 {
			t.Fatalf("SilentRuns = %d", r.SilentRuns)
		}
	})
}

func TestSkippedCount(t *testing.T) {
	t.Parallel()
	o := &Outcome{Skipped: map[Reason][]string{
		ReasonArchived: {"a", "b"},
		ReasonSnoozed:  {"c"},
	}}
	if got := o.SkippedCount(); got != 3 {
		t.Fatalf("SkippedCount = %d, want 3", got)
	}
}
