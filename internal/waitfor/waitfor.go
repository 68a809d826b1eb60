// Package waitfor races a polled condition against an exit notification and a deadline.
// Readiness polling and shutdown confirmation both reduce to this single primitive.
package waitfor

import (
	"context"
	"time"
)

// DefaultInterval is used when Race is given a condition but no positive interval.
const DefaultInterval = 500 * time.Millisecond

// Outcome reports which of the raced events fired first.
type Outcome int

const (
	// Ready means the condition reported true.
	Ready Outcome = iota
	// Exited means the done channel was closed.
	Exited
	// TimedOut means the deadline elapsed first.
	TimedOut
	// Canceled means the context was cancelled first.
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case Exited:
		return "exited"
	case TimedOut:
		return "timed out"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Race evaluates cond immediately and then once per interval until it returns true,
// done is closed, timeout elapses or ctx is cancelled, and reports which came first.
// A closed done channel always wins over a simultaneous condition success.
// cond receives a context that expires with the deadline, so a slow probe cannot
// stretch the wait past timeout. A nil cond only waits on done, the deadline and
// ctx. A nil done never fires.
func Race(ctx context.Context, done <-chan struct{}, timeout, interval time.Duration, cond func(context.Context) bool) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	condCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tick <-chan time.Time
	if cond != nil {
		if interval <= 0 {
			interval = DefaultInterval
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-done:
			return Exited
		default:
		}
		if ctx.Err() != nil {
			return Canceled
		}
		if cond != nil && cond(condCtx) {
			return Ready
		}
		select {
		case <-done:
			return Exited
		case <-deadline.C:
			return TimedOut
		case <-ctx.Done():
			return Canceled
		case <-tick:
		}
	}
}

// Exit waits up to timeout for done to be closed and reports whether it was.
func Exit(done <-chan struct{}, timeout time.Duration) bool {
	return Race(context.Background(), done, timeout, 0, nil) == Exited
}
