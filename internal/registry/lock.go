package registry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

// flock is a sibling lock-marker file beside the document. Creation with
// O_EXCL is the atomic acquire; removal is the release. A marker whose mtime
// is older than staleAfter is treated as left behind by a crashed process
// and broken.
type flock struct {
	path       string
	timeout    time.Duration
	retryEvery time.Duration
	staleAfter time.Duration
}

func newFlock(docPath string, timeout, retryEvery time.Duration) *flock {
	return &flock{
		path:       docPath + ".lock",
		timeout:    timeout,
		retryEvery: retryEvery,
		staleAfter: 2 * timeout,
	}
}

// acquire blocks until the lock is held, the timeout elapses
// (ErrLockTimeout), or ctx is done.
func (l *flock) acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.timeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + " " + time.Now().UTC().Format(time.RFC3339) + "\n")
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("registry: create lock %s: %w", l.path, err)
		}

		if st, serr := os.Stat(l.path); serr == nil && time.Since(st.ModTime()) > l.staleAfter {
			// Holder is presumed dead. Remove and retry immediately; a
			// concurrent breaker losing the race just loops again.
			_ = os.Remove(l.path)
			continue
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s (%s)", ErrLockTimeout, l.timeout, l.path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}
}

func (l *flock) release() {
	_ = os.Remove(l.path)
}
