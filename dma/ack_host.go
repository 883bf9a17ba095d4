//go:build !tinygo

package dma

import "github.com/yogk/f4/mmio"

// CR_BUSY is a reserved bit of the stream configuration register that a
// simulated controller holds while it moves an element. Disabling a
// stream waits for it to clear, like the enable bit reads back set until
// the current transfer beat completes on hardware.
const CR_BUSY = 0b1 << 31

// acknowledge clears status bits through the clear register. Simulated
// controllers have no logic linking the two registers, so the status bits
// are cleared here as well, before any later read can observe them.
func acknowledge(status, clear *mmio.Register32, mask uint32) {
	clear.Set(mask)
	status.ClearBits(mask)
}
