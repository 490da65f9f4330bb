// Package clock abstracts wall-clock reads and timers so time-driven code
// (the boundary scheduler, the sync gate, retry delays) can be driven by a
// fake clock in tests.
package clock

import "time"

// Clock is the subset of package time the node depends on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type system struct{}

// System returns the real clock.
func System() Clock { return system{} }

func (system) Now() time.Time { return time.Now() }

func (system) After(d time.Duration) <-chan time.Time { return time.After(d) }
