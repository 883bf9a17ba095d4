//go:build tinygo

package dma

import "github.com/yogk/f4/mmio"

const CR_BUSY = 0

// acknowledge clears status bits by writing ones to the clear register.
func acknowledge(status, clear *mmio.Register32, mask uint32) {
	clear.Set(mask)
}
