//go:build !tinygo

package mmio

import "sync/atomic"

// update applies f atomically. Simulated peripherals modify the same
// registers from their own goroutine, so a plain read-modify-write could
// lose their updates.
func (r *Register32) update(f func(uint32) uint32) {
	for {
		old := atomic.LoadUint32(&r.v)
		if atomic.CompareAndSwapUint32(&r.v, old, f(old)) {
			return
		}
	}
}
