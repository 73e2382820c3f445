package tgui

import (
	"errors"
	"strings"
	"testing"
)

func TestActionRoundTrip(t *testing.T) {
	t.Parallel()
	a := Action{Namespace: "topic", Action: "snooze", Subject: "billing", ChatID: -1001234, ThreadID: 42}

	data, err := SignAction(a, "s3cret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(data) > MaxCallbackDataLen {
		t.Fatalf("callback_data %d bytes exceeds limit", len(data))
	}

	got, err := VerifyAction(data, "s3cret", -1001234, 42)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != a {
		t.Fatalf("round trip: got %+v, want %+v", got, a)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()
	a := Action{Namespace: "topic", Action: "snooze", Subject: "billing", ChatID: 10, ThreadID: 1}
	data, err := SignAction(a, "s3cret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Flip the action field; the signature no longer covers the body.
	tampered := strings.Replace(data, ":snooze:", ":archive:", 1)
	if _, err := VerifyAction(tampered, "s3cret", 10, 1); !errors.Is(err, ErrActionSignature) {
		t.Fatalf("err = %v, want ErrActionSignature", err)
	}

	// Wrong secret.
	if _, err := VerifyAction(data, "other", 10, 1); !errors.Is(err, ErrActionSignature) {
		t.Fatalf("err = %v, want ErrActionSignature", err)
	}
}

func TestVerifyRejectsForeignContext(t *testing.T) {
	t.Parallel()
	a := Action{Namespace: "topic", Action: "archive", Subject: "billing", ChatID: 10, ThreadID: 1}
	data, err := SignAction(a, "s3cret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Valid signature, but the callback arrives from a different topic.
	if _, err := VerifyAction(data, "s3cret", 10, 2); !errors.Is(err, ErrActionContext) {
		t.Fatalf("thread mismatch err = %v, want ErrActionContext", err)
	}
	if _, err := VerifyAction(data, "s3cret", 11, 1); !errors.Is(err, ErrActionContext) {
		t.Fatalf("chat mismatch err = %v, want ErrActionContext", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()
	for _, data := range []string{
		"",
		"topic:snooze",
		"topic:snooze:billing:10:1",           // missing sig
		"topic:snooze:billing:ten:1:deadbeef", // bad chat id
		"topic:snooze:billing:10:one:deadbeef",
	} {
		if _, err := VerifyAction(data, "s3cret", 10, 1); !errors.Is(err, ErrActionMalformed) {
			t.Fatalf("data %q: err = %v, want ErrActionMalformed", data, err)
		}
	}
}

func TestSignRejectsBadFields(t *testing.T) {
	t.Parallel()
	if _, err := SignAction(Action{Action: "x"}, "s"); !errors.Is(err, ErrActionMalformed) {
		t.Fatalf("missing namespace: %v", err)
	}
	if _, err := SignAction(Action{Namespace: "n", Action: "a", Subject: "with:colon"}, "s"); !errors.Is(err, ErrActionMalformed) {
		t.Fatalf("separator in subject: %v", err)
	}
	long := Action{Namespace: "n", Action: "a", Subject: strings.Repeat("x", MaxCallbackDataLen), ChatID: 1, ThreadID: 1}
	if _, err := SignAction(long, "s"); !errors.Is(err, ErrCallbackDataTooLong) {
		t.Fatalf("oversized: %v", err)
	}
}
