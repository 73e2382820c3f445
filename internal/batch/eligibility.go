package batch

import (
	"time"

	"topicbot/internal/registry"
)

// Reason explains why a topic was skipped by a pass.
type Reason string

const (
	ReasonArchived      Reason = "archived"
	ReasonSnoozed       Reason = "snoozed"
	ReasonInactive      Reason = "inactive"
	ReasonReportedToday Reason = "already-reported-today"
	ReasonCooldown      Reason = "cooldown"
)

// Thresholds are the tunable eligibility knobs. Zero values fall back to
// the defaults below.
type Thresholds struct {
	// InactiveAfter skips topics with no activity this recent. Default 7d.
	InactiveAfter time.Duration
	// CheckupCooldown is the per-topic minimum gap between checkup
	// reports. Default 24h.
	CheckupCooldown time.Duration
	// PassCooldown is the document-level minimum gap between whole batch
	// passes. Default 1h. It is advisory: checked at pass start, stamped
	// at pass end, with no lock held across the pass.
	PassCooldown time.Duration
	// SpamThreshold is the number of consecutive silent checkup runs that
	// triggers an automatic snooze. Default 3.
	SpamThreshold int
	// AutoSnooze is how long an auto-snoozed topic stays quiet. Default 30d.
	AutoSnooze time.Duration
}

func (t Thresholds) withDefaults() Thresholds {
	if t.InactiveAfter <= 0 {
		t.InactiveAfter = 7 * 24 * time.Hour
	}
	if t.CheckupCooldown <= 0 {
		t.CheckupCooldown = 24 * time.Hour
	}
	if t.PassCooldown <= 0 {
		t.PassCooldown = time.Hour
	}
	if t.SpamThreshold <= 0 {
		t.SpamThreshold = 3
	}
	if t.AutoSnooze <= 0 {
		t.AutoSnooze = 30 * 24 * time.Hour
	}
	return t
}

// Decision is an eligibility verdict. Reason is set only when ineligible.
type Decision struct {
	Eligible bool
	Reason   Reason
}

func skip(r Reason) Decision { return Decision{Reason: r} }
func eligible() Decision     { return Decision{Eligible: true} }

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Evaluate decides whether rec is due for op at now. It is a pure function
// of its inputs: no clock reads, no store access, no side effects.
//
// activityHint is an externally observed activity timestamp (e.g. from the
// chat transport) merged with the record's own last-known activity.
//
// Rules apply in order; first match wins.
func Evaluate(rec *registry.Record, op registry.Op, now time.Time, activityHint *time.Time, th Thresholds) Decision {
	th = th.withDefaults()

	if rec.Status == registry.StatusArchived {
		return skip(ReasonArchived)
	}
	if rec.SnoozedUntil != nil && rec.SnoozedUntil.After(now) {
		return skip(ReasonSnoozed)
	}

	act := lastActivity(rec, activityHint)
	if act.IsZero() || now.Sub(act) > th.InactiveAfter {
		return skip(ReasonInactive)
	}

	switch op {
	case registry.OpDigest:
		if rec.LastDigestAt != nil && sameUTCDay(*rec.LastDigestAt, now) {
			return skip(ReasonReportedToday)
		}
	case registry.OpCheckup:
		if rec.LastCheckupReportAt != nil && now.Sub(*rec.LastCheckupReportAt) < th.CheckupCooldown {
			return skip(ReasonCooldown)
		}
	}
	return eligible()
}

func lastActivity(rec *registry.Record, hint *time.Time) time.Time {
	var act time.Time
	if rec.LastActivityAt != nil {
		act = *rec.LastActivityAt
	}
	if hint != nil && hint.After(act) {
		act = *hint
	}
	return act
}

// PassAllowed is the advisory document-level pass cooldown gate.
func PassAllowed(doc *registry.Document, now time.Time, th Thresholds) bool {
	th = th.withDefaults()
	return doc.LastBatchRunAt == nil || now.Sub(*doc.LastBatchRunAt) >= th.PassCooldown
}
