// Package mmio implements access to memory-mapped peripheral registers.
//
// All register reads and writes in the module go through this package.
// Each access is a single atomic load or store, which compiles to a plain
// volatile access on Cortex-M and keeps simulated hardware running in
// another goroutine free of data races on the host.
package mmio

import (
	"sync/atomic"
	"unsafe"
)

// Register32 is a 32-bit memory-mapped register.
type Register32 struct {
	v uint32
}

// Register16 is a 16-bit memory-mapped register occupying a 32-bit slot,
// as peripheral data registers do on the STM32 buses.
type Register16 struct {
	Register32
}

func (r *Register32) Get() uint32 {
	return atomic.LoadUint32(&r.v)
}

func (r *Register32) Set(v uint32) {
	atomic.StoreUint32(&r.v, v)
}

// SetBits sets the bits in mask with a read-modify-write.
func (r *Register32) SetBits(mask uint32) {
	r.update(func(v uint32) uint32 { return v | mask })
}

// ClearBits clears the bits in mask with a read-modify-write.
func (r *Register32) ClearBits(mask uint32) {
	r.update(func(v uint32) uint32 { return v &^ mask })
}

// HasBits reports whether any bit in mask is set.
func (r *Register32) HasBits(mask uint32) bool {
	return r.Get()&mask != 0
}

// ReplaceBits replaces the field of width mask at position pos with value.
func (r *Register32) ReplaceBits(value, mask uint32, pos uint8) {
	r.update(func(v uint32) uint32 {
		return v&^(mask<<pos) | (value&mask)<<pos
	})
}

// Field extracts the field of width mask at position pos.
func (r *Register32) Field(mask uint32, pos uint8) uint32 {
	return (r.Get() >> pos) & mask
}

func (r *Register16) Get() uint16 {
	return uint16(r.Register32.Get())
}

func (r *Register16) Set(v uint16) {
	r.Register32.Set(uint32(v))
}

// Addr returns the bus address of the register.
func (r *Register32) Addr() uint32 {
	return Addr(unsafe.Pointer(r), unsafe.Sizeof(*r))
}

// CompareAndSwap sets the register to new if it holds old.
func (r *Register32) CompareAndSwap(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&r.v, old, new)
}
