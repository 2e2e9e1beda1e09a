package handoff

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned by PollUntil when the deadline passes before
// the check reports success.
var ErrPollTimeout = errors.New("poll deadline exceeded")

// CheckFunc reports whether the awaited condition holds. A non-nil error
// aborts the poll immediately.
type CheckFunc func(ctx context.Context) (bool, error)

// PollUntil runs check every interval until it succeeds or timeout elapses.
// The deadline is measured on clk from loop entry, so the number of attempts
// depends on how long each check takes.
func PollUntil(ctx context.Context, clk Clock, interval, timeout time.Duration, check CheckFunc) error {
	if clk == nil {
		clk = RealClock()
	}
	start := clk.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if clk.Now().Sub(start) >= timeout {
			return ErrPollTimeout
		}

		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := sleep(ctx, clk, interval); err != nil {
			return err
		}
	}
}
