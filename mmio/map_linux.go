//go:build linux && !tinygo

package mmio

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is a register window mapped from a file, typically /dev/mem
// on boards where the DMA controller is reachable from Linux.
type Mapping struct {
	mem []byte
}

// Map maps size bytes of path starting at offset for reading and
// writing. The offset must be page aligned.
func Map(path string, offset int64, size int) (*Mapping, error) {
	if offset%int64(os.Getpagesize()) != 0 {
		return nil, fmt.Errorf("mmio: offset %#x is not page aligned", offset)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: %w", err)
	}
	// The mapping outlives the descriptor.
	defer f.Close()
	mem, err := unix.Mmap(int(f.Fd()), offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmio: mmap %s: %w", path, err)
	}
	return &Mapping{mem: mem}, nil
}

func (m *Mapping) Bytes() []byte {
	return m.mem
}

// Block returns the register block of type T at byte offset off.
func Block[T any](m *Mapping, off int) *T {
	var zero T
	if off%4 != 0 || off+int(unsafe.Sizeof(zero)) > len(m.mem) {
		panic("mmio: block out of range")
	}
	return (*T)(unsafe.Pointer(&m.mem[off]))
}

func (m *Mapping) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}
