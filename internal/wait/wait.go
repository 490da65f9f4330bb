// Package wait provides the bounded polling loop shared by the time-sync
// gate and the boundary scheduler.
package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
)

// Outcome is the result of a Poll.
type Outcome int

const (
	// Success means the condition reported done.
	Success Outcome = iota
	// Failure means the condition returned an error or the context ended.
	Failure
	// TimedOut means the poll budget ran out before the condition held.
	TimedOut
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Condition is evaluated once per poll. Returning an error stops polling.
type Condition func(ctx context.Context) (done bool, err error)

// Poll evaluates cond immediately and then once per interval until it
// reports done, returns an error, the context is cancelled, or cond has
// been evaluated maxPolls times. maxPolls <= 0 polls without bound.
//
// The interval is measured on clk so tests can drive it with a fake clock.
func Poll(ctx context.Context, clk clock.Clock, interval time.Duration, maxPolls int, cond Condition) (Outcome, error) {
	for polls := 1; ; polls++ {
		if err := ctx.Err(); err != nil {
			return Failure, err
		}

		done, err := cond(ctx)
		if err != nil {
			return Failure, err
		}
		if done {
			return Success, nil
		}
		if maxPolls > 0 && polls >= maxPolls {
			return TimedOut, nil
		}

		select {
		case <-ctx.Done():
			return Failure, ctx.Err()
		case <-clk.After(interval):
		}
	}
}
