// Package batch executes recurring operations across every tracked topic:
// eligibility filtering, isolated per-topic processing, rate-limited
// delivery, and outcome aggregation with group-anomaly detection.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"topicbot/internal/dispatch"
	"topicbot/internal/registry"
	logx "topicbot/pkg/logx"
)

var (
	// ErrPassCooldown means the previous pass ran too recently. The check
	// is advisory; two invocations racing through it can both proceed.
	ErrPassCooldown = errors.New("batch: pass cooldown not elapsed")

	// ErrDigestsDisabled means the document's feature flag gates the
	// digest pass off.
	ErrDigestsDisabled = errors.New("batch: digests disabled")
)

// RecordFunc is the external per-topic collaborator: given a record,
// produce a deliverable payload or fail. A nil payload with nil error means
// "nothing to report" and is counted as processed without delivery.
type RecordFunc func(ctx context.Context, rec registry.Record) (*dispatch.Payload, error)

// ActivityProbe supplies an externally observed activity timestamp for a
// record, or nil when the collaborator has nothing newer.
type ActivityProbe func(ctx context.Context, rec registry.Record) *time.Time

// Runner drives one recurring operation across the full record set.
type Runner struct {
	store *registry.Store
	disp  *dispatch.Dispatcher
	th    Thresholds
	log   logx.Logger

	now func() time.Time
}

func NewRunner(store *registry.Store, disp *dispatch.Dispatcher, th Thresholds, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{store: store, disp: disp, th: th.withDefaults(), log: log, now: time.Now}
}

type pending struct {
	item    Item
	payload dispatch.Payload
}

// Run executes one batch pass for op.
//
// Store-level failures (corrupt document, lock timeout on the final
// mutation) propagate; everything below record granularity is isolated and
// rolled into the outcome so one bad topic never aborts the pass.
func (r *Runner) Run(ctx context.Context, op registry.Op, gen RecordFunc, probe ActivityProbe) (*Outcome, error) {
	start := r.now()

	doc, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	if op == registry.OpDigest && !doc.DigestsEnabled {
		return nil, ErrDigestsDisabled
	}
	if !PassAllowed(doc, start, r.th) {
		return nil, ErrPassCooldown
	}

	passID := uuid.NewString()
	log := r.log.With(logx.String("pass", passID), logx.String("op", string(op)))
	log.Info("batch pass started", logx.Int("topics", len(doc.Topics)))

	out := &Outcome{
		Op:        op,
		PassID:    passID,
		StartedAt: start,
		Skipped:   map[Reason][]string{},
	}

	type groupTally struct{ total, failed int }
	groups := map[int64]*groupTally{}
	var queue []pending
	var eligibleKeys []string

	for _, key := range doc.Keys() {
		rec := doc.Topics[key]
		var hint *time.Time
		if probe != nil {
			hint = probe(ctx, *rec)
		}
		dec := Evaluate(rec, op, start, hint, r.th)
		if !dec.Eligible {
			out.Skipped[dec.Reason] = append(out.Skipped[dec.Reason], rec.Slug)
			continue
		}
		eligibleKeys = append(eligibleKeys, key)

		g := groups[rec.ChatID]
		if g == nil {
			g = &groupTally{}
			groups[rec.ChatID] = g
		}
		g.total++

		payload, perr := runOne(ctx, gen, *rec)
		if perr != nil {
			g.failed++
			out.Failures = append(out.Failures, Failure{Key: key, Slug: rec.Slug, Err: perr.Error()})
			log.Warn("topic processing failed", logx.String("key", key), logx.Err(perr))
			continue
		}
		item := Item{
			Key: key, Slug: rec.Slug, Name: rec.Name, Kind: rec.Kind,
			ChatID: rec.ChatID, ThreadID: rec.ThreadID,
		}
		if payload == nil {
			out.Reported = append(out.Reported, item)
			continue
		}
		queue = append(queue, pending{item: item, payload: *payload})
	}

	// A chat where every processed topic failed likely vanished out from
	// under us (deleted or migrated), so flag it instead of treating the
	// failures as independent.
	for chatID, g := range groups {
		if g.total > 0 && g.failed == g.total {
			out.FlaggedChats = append(out.FlaggedChats, chatID)
		}
	}
	sort.Slice(out.FlaggedChats, func(i, j int) bool { return out.FlaggedChats[i] < out.FlaggedChats[j] })

	// Fan deliveries out in enumeration order, one at a time.
	for _, p := range queue {
		if ctx.Err() != nil {
			out.DeliveryFailures = append(out.DeliveryFailures, Failure{Key: p.item.Key, Slug: p.item.Slug, Err: ctx.Err().Error()})
			out.Reported = append(out.Reported, p.item)
			continue
		}
		to := dispatch.Target{ChatID: p.item.ChatID, ThreadID: p.item.ThreadID}
		if derr := r.disp.Deliver(ctx, to, op, p.payload); derr != nil {
			out.DeliveryFailures = append(out.DeliveryFailures, Failure{Key: p.item.Key, Slug: p.item.Slug, Err: derr.Error()})
		} else {
			p.item.Delivered = true
		}
		out.Reported = append(out.Reported, p.item)
	}

	// End-of-pass bookkeeping: the run timestamp, the checkup-run stamp,
	// and the silent-runs transition all commit in one transaction.
	endAt := r.now()
	_, err = r.store.Mutate(ctx, func(d *registry.Document) error {
		d.LastBatchRunAt = &endAt
		if op != registry.OpCheckup {
			return nil
		}
		for _, key := range eligibleKeys {
			rec := d.Topics[key]
			if rec == nil {
				continue // quarantined or removed since the pass started
			}
			if silentRunStep(rec, endAt, r.th) {
				out.AutoSnoozed = append(out.AutoSnoozed, rec.Slug)
				log.Info("topic auto-snoozed after silent runs", logx.String("key", key), logx.Time("until", *rec.SnoozedUntil))
			}
			ts := endAt
			rec.LastCheckupAt = &ts
		}
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("batch: record pass state: %w", err)
	}

	out.Duration = r.now().Sub(start)
	log.Info("batch pass finished",
		logx.Int("reported", len(out.Reported)),
		logx.Int("skipped", out.SkippedCount()),
		logx.Int("failed", len(out.Failures)),
		logx.Int("delivery_failed", len(out.DeliveryFailures)),
		logx.Int("flagged_chats", len(out.FlaggedChats)),
		logx.Duration("dur", out.Duration))
	return out, nil
}

// runOne isolates the collaborator call; a panic becomes a per-record
// failure like any other error.
func runOne(ctx context.Context, gen RecordFunc, rec registry.Record) (p *dispatch.Payload, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			p = nil
			err = fmt.Errorf("panic: %v", rv)
		}
	}()
	return gen(ctx, rec)
}
