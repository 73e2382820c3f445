package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Target is one delivery destination: a forum thread within a chat.
type Target struct {
	ChatID   int64
	ThreadID int
}

// Button is one short inline action attached to a payload. Data is the
// signed callback string built with tgui.SignAction.
type Button struct {
	Label string
	Data  string
}

// Payload is one deliverable report: Telegram HTML plus optional actions.
type Payload struct {
	Text    string
	Buttons []Button
}

// Sender delivers one payload to one destination. The production
// implementation lives in internal/transport/telegram.
type Sender interface {
	Send(ctx context.Context, to Target, p Payload) error
}

// RetryAfterError is implemented by errors that carry an explicit retry
// delay, such as the transport's flood-limit error.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// RetryAfter wraps err with a retry delay hint.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }

// retryDelay extracts a retry hint from err, if any.
func retryDelay(err error) (time.Duration, bool) {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter(), true
	}
	return 0, false
}
