//go:build !tinygo

package mmio

import (
	"sort"
	"sync"
	"unsafe"
)

// The host has 64-bit pointers, but DMA address registers are 32 bits
// wide. Regions handed to the DMA engine are assigned addresses in a
// synthetic SRAM window, and the simulator resolves them back.

const (
	sramBase = 0x2000_0000
	// Keep regions apart so out-of-bounds transfers fault instead of
	// silently landing in a neighbour.
	regionGuard = 0x100
)

type region struct {
	addr uint32
	size uintptr
	ptr  unsafe.Pointer
}

var (
	mu      sync.Mutex
	regions []region
	byPtr   = make(map[unsafe.Pointer]uint32)
	next    uint32 = sramBase
)

// Addr returns the bus address of the size bytes at p. The region is
// pinned for the lifetime of the program.
func Addr(p unsafe.Pointer, size uintptr) uint32 {
	mu.Lock()
	defer mu.Unlock()
	if a, ok := byPtr[p]; ok {
		// Grow the mapping if a larger view of the same memory is
		// requested.
		i := find(a)
		if regions[i].size < size {
			regions[i].size = size
		}
		return a
	}
	a := next
	next += uint32(size+regionGuard) &^ 0x3
	regions = append(regions, region{addr: a, size: size, ptr: p})
	byPtr[p] = a
	return a
}

func find(addr uint32) int {
	i := sort.Search(len(regions), func(i int) bool {
		return regions[i].addr > addr
	})
	return i - 1
}

// Resolve maps the n bytes at bus address addr back to memory. It
// returns nil if the range is not inside a single region.
func Resolve(addr uint32, n uintptr) unsafe.Pointer {
	mu.Lock()
	defer mu.Unlock()
	i := find(addr)
	if i < 0 {
		return nil
	}
	r := regions[i]
	off := uintptr(addr - r.addr)
	if off+n > r.size {
		return nil
	}
	return unsafe.Add(r.ptr, off)
}

// RegisterAt returns the register at bus address addr, or nil.
func RegisterAt(addr uint32) *Register32 {
	p := Resolve(addr, unsafe.Sizeof(Register32{}))
	if p == nil {
		return nil
	}
	return (*Register32)(p)
}
