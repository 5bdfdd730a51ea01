// Package deadline is the cooperative wait-with-deadline wrapper shared by
// both queue engines. It validates caller timeouts, derives bounded contexts,
// and maps deadline expiry back to the expected queue conditions.
package deadline

import (
	"context"
	"errors"
	"time"

	queuify "github.com/msamsami/queuify"
)

// Apply validates timeout and returns a context bounded by it. A timeout of 0
// adds no deadline beyond what ctx already carries; a negative timeout is
// ErrNegativeTimeout. The returned cancel func is always non-nil on success
// and must be called to release the timer.
func Apply(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if timeout < 0 {
		return nil, nil, queuify.ErrNegativeTimeout
	}
	if timeout == 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// Remaining reports the time left until ctx's deadline, clamped at zero.
// ok is false when ctx carries no deadline, which blocking store operations
// interpret as "wait indefinitely".
func Remaining(ctx context.Context) (d time.Duration, ok bool) {
	dl, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	d = time.Until(dl)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Expired reports whether err is a deadline expiry rather than a cancellation
// or store failure.
func Expired(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
