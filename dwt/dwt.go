// Package dwt retries operations until a cycle-counter deadline.
//
// The deadline is advisory: the operation is only abandoned between
// attempts, never preempted.
package dwt

import (
	"errors"

	"github.com/yogk/f4/units"
)

var ErrTimeout = errors.New("dwt: operation timed out")

// Counter is a free-running, wrapping cycle counter.
type Counter interface {
	Cycles() uint32
}

// TryUntil calls f until it reports ok or ticks cycles have passed.
func TryUntil[R any](c Counter, ticks units.Ticks, f func() (R, bool)) (R, error) {
	return TryUntilWith(c, ticks, f, call[R])
}

func call[R any](f func() (R, bool)) (R, bool) {
	return f()
}

// TryUntilWith is like TryUntil but passes arg to f, so that interrupt
// handlers can retry without allocating a closure.
func TryUntilWith[A, R any](c Counter, ticks units.Ticks, arg A, f func(arg A) (R, bool)) (R, error) {
	deadline := c.Cycles() + uint32(ticks)
	for {
		if r, ok := f(arg); ok {
			return r, nil
		}
		// Signed distance handles counter wrap-around.
		if int32(deadline-c.Cycles()) < 0 {
			var zero R
			return zero, ErrTimeout
		}
		pause()
	}
}
