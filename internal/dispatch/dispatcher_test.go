package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"topicbot/internal/registry"
	logx "topicbot/pkg/logx"
)

type scriptedSender struct {
	calls int
	errs  []error // error per attempt; attempts beyond the script succeed
}

func (s *scriptedSender) Send(ctx context.Context, to Target, p Payload) error {
	i := s.calls
	s.calls++
	if i < len(s.errs) {
		return s.errs[i]
	}
	return nil
}

func testDispatcher(t *testing.T, sender Sender) (*Dispatcher, *registry.Store, *[]time.Duration) {
	t.Helper()
	store := registry.Open(t.TempDir()+"/registry.json", logx.Nop())
	ctx := context.Background()
	if err := store.Init(ctx, "s3cret", nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	_, err := store.Mutate(ctx, func(d *registry.Document) error {
		now := time.Now().UTC()
		d.Topics[registry.Key(100, 1)] = &registry.Record{
			ChatID: 100, ThreadID: 1, Slug: "alpha", Name: "alpha",
			Kind: registry.KindProject, Status: registry.StatusActive,
			CapsuleVersion: 1, LastActivityAt: &now,
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	d := New(Config{MinInterval: time.Nanosecond, SameChatDelay: 3 * time.Second}, sender, store, logx.Nop())

	// Deterministic clock: now is frozen, sleeps are recorded and advance it.
	var sleeps []time.Duration
	clock := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		clock = clock.Add(dur)
		return nil
	}
	return d, store, &sleeps
}

func TestDeliverSuccessPersists(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{}
	d, store, _ := testDispatcher(t, sender)

	if err := d.Deliver(context.Background(), Target{ChatID: 100, ThreadID: 1}, registry.OpDigest, Payload{Text: "hi"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("calls = %d", sender.calls)
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Topic(100, 1).LastDigestAt == nil {
		t.Fatal("success not stamped")
	}
}

func TestDeliverRetriesOnceOnRetryAfter(t *testing.T) {
	t.Parallel()
	flood := RetryAfter(errors.New("too many requests"), 5*time.Second)
	sender := &scriptedSender{errs: []error{flood}}
	d, store, sleeps := testDispatcher(t, sender)

	if err := d.Deliver(context.Background(), Target{ChatID: 100, ThreadID: 1}, registry.OpDigest, Payload{Text: "hi"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sender.calls != 2 {
		t.Fatalf("calls = %d, want retry", sender.calls)
	}
	found := false
	for _, s := range *sleeps {
		if s == 5*time.Second {
			found = true
		}
	}
	if !found {
		t.Fatalf("hinted delay not honored: %v", *sleeps)
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := doc.Topic(100, 1)
	if got.LastDigestAt == nil || got.LastDeliveryError != nil {
		t.Fatalf("retry success not recorded cleanly: %+v", got)
	}
}

func TestDeliverGivesUpAfterSecondFailure(t *testing.T) {
	t.Parallel()
	flood := RetryAfter(errors.New("too many requests"), time.Second)
	sender := &scriptedSender{errs: []error{flood, flood}}
	d, store, _ := testDispatcher(t, sender)

	err := d.Deliver(context.Background(), Target{ChatID: 100, ThreadID: 1}, registry.OpDigest, Payload{Text: "hi"})
	if err == nil {
		t.Fatal("expected failure after second flood error")
	}
	if sender.calls != 2 {
		t.Fatalf("calls = %d, exactly one retry allowed", sender.calls)
	}
	doc, lerr := store.Load()
	if lerr != nil {
		t.Fatalf("load: %v", lerr)
	}
	got := doc.Topic(100, 1)
	if got.LastDeliveryError == nil {
		t.Fatal("failure not persisted")
	}
	if got.LastDigestAt != nil {
		t.Fatal("failed delivery must not stamp the op timestamp")
	}
}

func TestDeliverPlainFailureNoRetry(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{errs: []error{errors.New("chat not found")}}
	d, _, _ := testDispatcher(t, sender)

	if err := d.Deliver(context.Background(), Target{ChatID: 100, ThreadID: 1}, registry.OpDigest, Payload{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if sender.calls != 1 {
		t.Fatalf("calls = %d, plain errors must not retry", sender.calls)
	}
}

func TestSameChatSpacing(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{}
	d, _, sleeps := testDispatcher(t, sender)
	ctx := context.Background()
	same := Target{ChatID: 100, ThreadID: 1}

	if err := d.Deliver(ctx, same, registry.OpDigest, Payload{Text: "a"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	n := len(*sleeps)
	if err := d.Deliver(ctx, same, registry.OpDigest, Payload{Text: "b"}); err != nil {
		t.Fatalf("second: %v", err)
	}
	got := (*sleeps)[n:]
	if len(got) != 1 || got[0] != 3*time.Second {
		t.Fatalf("same-target spacing sleeps = %v, want one 3s wait", got)
	}

	// A different destination only pays the base interval.
	other := Target{ChatID: 200, ThreadID: 1}
	n = len(*sleeps)
	if err := d.Deliver(ctx, other, registry.OpDigest, Payload{Text: "c"}); err != nil {
		t.Fatalf("third: %v", err)
	}
	if extra := (*sleeps)[n:]; len(extra) != 0 {
		t.Fatalf("cross-target delivery slept %v", extra)
	}
}

func TestRetryAfterUnwrap(t *testing.T) {
	t.Parallel()
	base := errors.New("flood")
	err := RetryAfter(base, 2*time.Second)
	if !errors.Is(err, base) {
		t.Fatal("wrapped error lost")
	}
	if d, ok := retryDelay(err); !ok || d != 2*time.Second {
		t.Fatalf("retryDelay = %v, %v", d, ok)
	}
	if _, ok := retryDelay(errors.New("plain")); ok {
		t.Fatal("plain error must carry no hint")
	}
	if RetryAfter(nil, time.Second) != nil {
		t.Fatal("nil must stay nil")
	}
}
