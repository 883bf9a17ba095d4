//go:build tinygo && stm32f4

package dwt

import (
	"runtime/volatile"
	"unsafe"
)

const (
	demcrAddr     = 0xE000EDFC
	dwtCtrl       = 0xE0001000
	dwtCyccnt     = 0xE0001004
	demcrTRCENA   = 0b1 << 24
	ctrlCYCCNTENA = 0b1 << 0
)

// CycleCounter is the core's DWT cycle counter.
type CycleCounter struct{}

// Enable starts the cycle counter. It must be called before TryUntil
// can observe time passing.
func (CycleCounter) Enable() {
	demcr := (*volatile.Register32)(unsafe.Pointer(uintptr(demcrAddr)))
	demcr.SetBits(demcrTRCENA)
	ctrl := (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCtrl)))
	ctrl.SetBits(ctrlCYCCNTENA)
}

func (CycleCounter) Cycles() uint32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCyccnt))).Get()
}
