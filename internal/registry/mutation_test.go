package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRenameKeepsSlug(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedDoc(t, s, testRecord(100, 5, "billing"))

	if err := s.Rename(context.Background(), 100, 5, "Billing v2"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	doc, _ := s.Load()
	rec := doc.Topic(100, 5)
	if rec.Name != "Billing v2" {
		t.Fatalf("Name = %q", rec.Name)
	}
	if rec.Slug != "billing" {
		t.Fatalf("Slug = %q, rename must never touch the slug", rec.Slug)
	}
}

func TestRenameRejectsBadName(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedDoc(t, s, testRecord(100, 5, "billing"))

	if err := s.Rename(context.Background(), 100, 5, ""); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.Rename(context.Background(), 100, 5, strings.Repeat("x", MaxNameRunes+1)); err == nil {
		t.Fatal("expected error for oversized name")
	}
}

func TestSnoozeUnsnooze(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedDoc(t, s, testRecord(100, 5, "billing"))
	until := time.Now().Add(time.Hour)

	if err := s.Snooze(context.Background(), 100, 5, until); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	doc, _ := s.Load()
	rec := doc.Topic(100, 5)
	if rec.Status != StatusSnoozed || rec.SnoozedUntil == nil {
		t.Fatalf("status = %q, until = %v", rec.Status, rec.SnoozedUntil)
	}
	if !rec.Snoozed(time.Now()) {
		t.Fatal("Snoozed(now) = false")
	}
	if rec.Snoozed(until.Add(time.Minute)) {
		t.Fatal("snooze did not expire")
	}

	if err := s.Unsnooze(context.Background(), 100, 5); err != nil {
		t.Fatalf("unsnooze: %v", err)
	}
	doc, _ = s.Load()
	rec = doc.Topic(100, 5)
	if rec.Status != StatusActive || rec.SnoozedUntil != nil || rec.SilentRuns != 0 {
		t.Fatalf("unsnooze left %q / %v / %d", rec.Status, rec.SnoozedUntil, rec.SilentRuns)
	}
}

func TestSnoozeArchivedRefused(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedDoc(t, s, testRecord(100, 5, "billing"))

	if err := s.Archive(context.Background(), 100, 5); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := s.Snooze(context.Background(), 100, 5, time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected refusal snoozing an archived topic")
	}

	if err := s.Unarchive(context.Background(), 100, 5); err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	doc, _ := s.Load()
	if doc.Topic(100, 5).Status != StatusActive {
		t.Fatal("unarchive did not reactivate")
	}
}

func TestUpgradeCapsuleNoDowngrade(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedDoc(t, s, testRecord(100, 5, "billing"))

	if err := s.UpgradeCapsule(context.Background(), 100, 5, 3); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if err := s.UpgradeCapsule(context.Background(), 100, 5, 2); err == nil {
		t.Fatal("expected refusal for downgrade")
	}
	doc, _ := s.Load()
	if got := doc.Topic(100, 5).CapsuleVersion; got != 3 {
		t.Fatalf("CapsuleVersion = %d, want 3", got)
	}
}

func TestTouchActivityMonotonic(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	rec := testRecord(100, 5, "billing")
	rec.LastActivityAt = nil
	seedDoc(t, s, rec)

	later := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := s.TouchActivity(context.Background(), 100, 5, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	// An older observation must not move the timestamp backwards.
	if err := s.TouchActivity(context.Background(), 100, 5, later.Add(-time.Hour)); err != nil {
		t.Fatalf("touch older: %v", err)
	}
	doc, _ := s.Load()
	if got := doc.Topic(100, 5).LastActivityAt; got == nil || !got.Equal(later) {
		t.Fatalf("LastActivityAt = %v, want %v", got, later)
	}
}

func TestMarkDeliveredPerOp(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	rec := testRecord(100, 5, "billing")
	seedDoc(t, s, rec)

	if err := s.MarkDeliveryFailed(context.Background(), 100, 5, "telegram: chat not found"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	doc, _ := s.Load()
	if doc.Topic(100, 5).LastDeliveryError == nil {
		t.Fatal("delivery error not stored")
	}

	at := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	if err := s.MarkDelivered(context.Background(), 100, 5, OpDigest, at); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	doc, _ = s.Load()
	got := doc.Topic(100, 5)
	if got.LastDigestAt == nil || !got.LastDigestAt.Equal(at) {
		t.Fatalf("LastDigestAt = %v", got.LastDigestAt)
	}
	if got.LastCheckupReportAt != nil {
		t.Fatal("digest delivery stamped the checkup timestamp")
	}
	if got.LastDeliveryError != nil {
		t.Fatal("success did not clear the stored delivery error")
	}

	if err := s.MarkDelivered(context.Background(), 100, 5, Op("bogus"), at); err == nil {
		t.Fatal("expected error for unknown op")
	}
}

func TestMarkDeliveryFailedTruncates(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedDoc(t, s, testRecord(100, 5, "billing"))

	long := strings.Repeat("é", MaxDeliveryErrorLen) // 2 bytes per rune
	if err := s.MarkDeliveryFailed(context.Background(), 100, 5, long); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	doc, _ := s.Load()
	stored := doc.Topic(100, 5).LastDeliveryError
	if stored == nil {
		t.Fatal("error not stored")
	}
	if len(*stored) > MaxDeliveryErrorLen {
		t.Fatalf("stored %d bytes, cap %d", len(*stored), MaxDeliveryErrorLen)
	}
	if !strings.HasPrefix(long, *stored) {
		t.Fatal("truncation split a UTF-8 sequence")
	}
}

func TestNoSuchTopic(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedDoc(t, s)

	err := s.Archive(context.Background(), 1, 2)
	if !errors.Is(err, ErrNoSuchTopic) {
		t.Fatalf("err = %v, want ErrNoSuchTopic", err)
	}
}

func TestTruncErr(t *testing.T) {
	t.Parallel()
	if got := truncErr("short"); got != "short" {
		t.Fatalf("got %q", got)
	}
	got := truncErr(strings.Repeat("a", MaxDeliveryErrorLen+50))
	if len(got) != MaxDeliveryErrorLen {
		t.Fatalf("len = %d", len(got))
	}
}
