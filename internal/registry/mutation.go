package registry

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrNoSuchTopic is returned by record transactions when the composite key
// is not present in the document.
var ErrNoSuchTopic = fmt.Errorf("registry: no such topic")

// withTopic runs fn against one record inside a lock-guarded transaction.
func (s *Store) withTopic(ctx context.Context, chatID int64, threadID int, fn func(*Record) error) error {
	_, err := s.Mutate(ctx, func(d *Document) error {
		rec := d.Topic(chatID, threadID)
		if rec == nil {
			return fmt.Errorf("%w: %s", ErrNoSuchTopic, Key(chatID, threadID))
		}
		return fn(rec)
	})
	return err
}

// Rename changes the display name. The slug is deliberately left alone:
// once assigned it is never reassigned by any operation.
func (s *Store) Rename(ctx context.Context, chatID int64, threadID int, name string) error {
	if name == "" || utf8.RuneCountInString(name) > MaxNameRunes {
		return invalid(Key(chatID, threadID), "name", "empty or too long")
	}
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		r.Name = name
		return nil
	})
}

// Archive moves the topic to its terminal retained status.
func (s *Store) Archive(ctx context.Context, chatID int64, threadID int) error {
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		r.Status = StatusArchived
		r.SnoozedUntil = nil
		return nil
	})
}

// Unarchive restores an archived topic to active.
func (s *Store) Unarchive(ctx context.Context, chatID int64, threadID int) error {
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		r.Status = StatusActive
		return nil
	})
}

// Snooze suppresses the topic until the given instant.
func (s *Store) Snooze(ctx context.Context, chatID int64, threadID int, until time.Time) error {
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		if r.Status == StatusArchived {
			return invalid(r.Key(), "status", "cannot snooze an archived topic")
		}
		u := until.UTC()
		r.Status = StatusSnoozed
		r.SnoozedUntil = &u
		return nil
	})
}

// Unsnooze clears a snooze and reactivates the topic.
func (s *Store) Unsnooze(ctx context.Context, chatID int64, threadID int) error {
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		if r.Status == StatusSnoozed {
			r.Status = StatusActive
		}
		r.SnoozedUntil = nil
		r.SilentRuns = 0
		return nil
	})
}

// UpgradeCapsule bumps the tracked capsule schema version. Downgrades are
// refused; the capsule file set itself is managed elsewhere.
func (s *Store) UpgradeCapsule(ctx context.Context, chatID int64, threadID int, to int) error {
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		if to < r.CapsuleVersion {
			return invalid(r.Key(), "capsule_version", fmt.Sprintf("cannot downgrade %d -> %d", r.CapsuleVersion, to))
		}
		r.CapsuleVersion = to
		return nil
	})
}

// TouchActivity records externally observed user activity.
func (s *Store) TouchActivity(ctx context.Context, chatID int64, threadID int, at time.Time) error {
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		u := at.UTC()
		if r.LastActivityAt == nil || u.After(*r.LastActivityAt) {
			r.LastActivityAt = &u
		}
		return nil
	})
}

// truncErr bounds an error string to the stored cap without splitting a
// UTF-8 sequence.
func truncErr(msg string) string {
	if len(msg) <= MaxDeliveryErrorLen {
		return msg
	}
	cut := MaxDeliveryErrorLen
	for cut > 0 && msg[cut]&0xC0 == 0x80 {
		cut--
	}
	return msg[:cut]
}
