package dma

import (
	"fmt"
	"slices"
	"sync/atomic"
	"unsafe"

	"github.com/yogk/f4/mmio"
)

// State is the ownership state of a buffer.
type State uint32

const (
	// Free buffers are owned by software.
	Free State = iota
	// DmaReading buffers are being read by a memory-to-peripheral
	// transfer.
	DmaReading
	// DmaWriting buffers are being written by a peripheral-to-memory
	// transfer.
	DmaWriting
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case DmaReading:
		return "locked by DMA (reading)"
	case DmaWriting:
		return "locked by DMA (writing)"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Buffer is a fixed-size array of elements that can be handed to the DMA
// stream named by C. While a stream owns the buffer, software access is
// refused.
type Buffer[E Word, C Channel] struct {
	data  []E
	state atomic.Uint32
}

// NewBuffer returns a free buffer holding a copy of initial. Buffers are
// meant to be allocated once at program start and live forever.
func NewBuffer[E Word, C Channel](initial []E) *Buffer[E, C] {
	if len(initial) == 0 {
		panic("dma: empty buffer")
	}
	return &Buffer[E, C]{data: slices.Clone(initial)}
}

// View is a read-only view of a buffer's contents.
type View[E Word] struct {
	data []E
}

func (v View[E]) Len() int {
	return len(v.data)
}

func (v View[E]) At(i int) E {
	return v.data[i]
}

// CopyTo copies the contents to dst and returns the number of elements
// copied.
func (v View[E]) CopyTo(dst []E) int {
	return copy(dst, v.data)
}

// Lock returns a read-only view of the contents. It fails with ErrInUse
// while a stream owns the buffer. The view must not be used after the
// buffer is handed to a stream.
func (b *Buffer[E, C]) Lock() (View[E], error) {
	if State(b.state.Load()) != Free {
		return View[E]{}, ErrInUse
	}
	return View[E]{data: b.data}, nil
}

// LockMut is like Lock but returns the contents for modification.
func (b *Buffer[E, C]) LockMut() ([]E, error) {
	if State(b.state.Load()) != Free {
		return nil, ErrInUse
	}
	return b.data, nil
}

func (b *Buffer[E, C]) Len() int {
	return len(b.data)
}

// State returns the current ownership state.
func (b *Buffer[E, C]) State() State {
	return State(b.state.Load())
}

// acquire hands the buffer to a transfer in direction dir and returns
// the bus address of its contents.
func (b *Buffer[E, C]) acquire(dir Direction) (uint32, error) {
	s := DmaReading
	if dir == PeripheralToMemory {
		s = DmaWriting
	}
	if !b.state.CompareAndSwap(uint32(Free), uint32(s)) {
		return 0, ErrInUse
	}
	return regionAddr(b.data), nil
}

func (b *Buffer[E, C]) unlock() {
	b.state.Store(uint32(Free))
}

// Release returns the buffer to software once its stream has signalled
// completion. It fails with ErrNotDone, leaving the buffer locked, if the
// transfer complete flag is not yet set. A transfer error disables the
// stream and returns ErrTransfer; the buffer then stays locked until
// Reset.
func (b *Buffer[E, C]) Release(c *Controller) error {
	if b.State() == Free {
		return nil
	}
	id := ID[C]()
	f := c.Flags(id)
	switch {
	case f&TransferError != 0:
		c.disable(id)
		return ErrTransfer
	case f&TransferComplete == 0:
		return ErrNotDone
	}
	c.ClearFlags(id, TransferComplete|HalfTransfer)
	c.disable(id)
	b.unlock()
	c.end(id)
	return nil
}

// Reset reclaims a buffer left locked by an aborted or failed transfer.
// The contents are undefined afterwards. Reset fails with ErrInUse while
// the stream is still enabled and does nothing to a free buffer.
func (b *Buffer[E, C]) Reset(c *Controller) error {
	id := ID[C]()
	if c.Enabled(id) {
		return ErrInUse
	}
	if b.State() == Free {
		return nil
	}
	c.ClearFlags(id, AllFlags)
	b.unlock()
	c.end(id)
	return nil
}

func regionAddr[E Word](data []E) uint32 {
	var e E
	return mmio.Addr(unsafe.Pointer(unsafe.SliceData(data)), uintptr(len(data))*unsafe.Sizeof(e))
}
