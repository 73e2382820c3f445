package registry

import (
	"context"
	"fmt"
	"time"
)

// Op names a recurring per-topic operation. Closed set: the daily digest
// and the periodic checkup.
type Op string

const (
	OpDigest  Op = "digest"
	OpCheckup Op = "checkup"
)

func (op Op) Valid() bool { return op == OpDigest || op == OpCheckup }

// LastDeliveredAt returns when a report for op last reached the topic.
func (r *Record) LastDeliveredAt(op Op) *time.Time {
	switch op {
	case OpDigest:
		return r.LastDigestAt
	case OpCheckup:
		return r.LastCheckupReportAt
	}
	return nil
}

// MarkDelivered records a successful delivery for op: the matching
// timestamp is stamped and any previous delivery error is cleared.
//
// Each delivery outcome is its own transaction on purpose: a crash mid
// dispatch leaves already-delivered topics correctly marked and the rest
// simply re-eligible on the next pass.
func (s *Store) MarkDelivered(ctx context.Context, chatID int64, threadID int, op Op, at time.Time) error {
	if !op.Valid() {
		return fmt.Errorf("registry: unknown op %q", op)
	}
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		u := at.UTC()
		switch op {
		case OpDigest:
			r.LastDigestAt = &u
		case OpCheckup:
			r.LastCheckupReportAt = &u
		}
		r.LastDeliveryError = nil
		return nil
	})
}

// MarkDeliveryFailed stores the (bounded) delivery error on the record.
func (s *Store) MarkDeliveryFailed(ctx context.Context, chatID int64, threadID int, msg string) error {
	return s.withTopic(ctx, chatID, threadID, func(r *Record) error {
		t := truncErr(msg)
		r.LastDeliveryError = &t
		return nil
	})
}
