package bringup

import (
	"math"
	"time"
)

// Backoff computes the delay before a connect command is reissued.
// The zero value reissues immediately.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before retry number attempt (1-based):
// Initial doubled per previous attempt, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 || attempt < 1 {
		return 0
	}
	maxDelay := b.Max
	if maxDelay < b.Initial {
		maxDelay = b.Initial
	}

	exp := min(float64(attempt-1), math.Log2(float64(maxDelay)/float64(b.Initial)))
	d := time.Duration(math.Pow(2, exp) * float64(b.Initial))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
