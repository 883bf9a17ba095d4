//go:build tinygo

package mmio

import "unsafe"

// Addr returns the physical address of p.
func Addr(p unsafe.Pointer, size uintptr) uint32 {
	return uint32(uintptr(p))
}

// At returns the register block of type T at the physical address addr.
func At[T any](addr uintptr) *T {
	return (*T)(unsafe.Pointer(addr))
}
