// Package dispatch paces and retries outbound delivery of generated
// reports. Deliveries are strictly serialized: one attempt at a time, in
// the order the caller hands them over.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"topicbot/internal/registry"
	logx "topicbot/pkg/logx"
)

type Config struct {
	// MinInterval is the base spacing between any two sends.
	MinInterval time.Duration
	// SameChatDelay is the (longer) spacing when two consecutive sends
	// target the same destination.
	SameChatDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = time.Second
	}
	if c.SameChatDelay <= 0 {
		c.SameChatDelay = 3 * time.Second
	}
	return c
}

// Dispatcher wraps a Sender with pacing, a single flood retry, and
// per-delivery persistence of the outcome.
//
// It is not safe for concurrent use; the batch runner drives it as one
// sequential stream, which is what keeps delivery order equal to record
// enumeration order.
type Dispatcher struct {
	cfg    Config
	sender Sender
	store  *registry.Store
	log    logx.Logger

	limiter *rate.Limiter

	lastSentAt time.Time
	lastTarget Target

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, sender Sender, store *registry.Store, log logx.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:    cfg,
		sender: sender,
		store:  store,
		log:    log,
		// Base pacing: one send per MinInterval, no burst.
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deliver sends one payload to one topic and persists the outcome.
//
// Pacing: the rate limiter enforces the base interval; consecutive sends to
// the same destination are held back further until SameChatDelay has passed
// since the previous send. A failure carrying a retry-after hint sleeps the
// hinted delay and retries exactly once; a second failure (and any other
// failure) propagates to the caller.
//
// Success clears the record's stored delivery error and stamps the op
// timestamp; failure stores the truncated error string. Both go through
// independent lock-guarded store transactions, so a crash mid-dispatch
// leaves already-delivered topics correctly marked.
func (d *Dispatcher) Deliver(ctx context.Context, to Target, op registry.Op, p Payload) error {
	if err := d.pace(ctx, to); err != nil {
		return err
	}

	err := d.sender.Send(ctx, to, p)
	if err != nil {
		if after, ok := retryDelay(err); ok {
			d.log.Warn("delivery flood-limited, retrying once",
				logx.Int64("chat_id", to.ChatID), logx.Int("thread_id", to.ThreadID), logx.Duration("after", after))
			if serr := d.sleep(ctx, after); serr != nil {
				d.finish(to)
				return serr
			}
			err = d.sender.Send(ctx, to, p)
		}
	}
	// Pacing state updates after any outcome so subsequent spacing stays
	// correct even for failed sends.
	d.finish(to)

	if err != nil {
		if perr := d.store.MarkDeliveryFailed(ctx, to.ChatID, to.ThreadID, err.Error()); perr != nil {
			d.log.Error("failed recording delivery error", logx.String("key", registry.Key(to.ChatID, to.ThreadID)), logx.Err(perr))
		}
		return err
	}
	if perr := d.store.MarkDelivered(ctx, to.ChatID, to.ThreadID, op, d.now()); perr != nil {
		d.log.Error("failed recording delivery", logx.String("key", registry.Key(to.ChatID, to.ThreadID)), logx.Err(perr))
	}
	return nil
}

func (d *Dispatcher) pace(ctx context.Context, to Target) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if to == d.lastTarget && !d.lastSentAt.IsZero() {
		elapsed := d.now().Sub(d.lastSentAt)
		if elapsed < d.cfg.SameChatDelay {
			if err := d.sleep(ctx, d.cfg.SameChatDelay-elapsed); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) finish(to Target) {
	d.lastSentAt = d.now()
	d.lastTarget = to
}
