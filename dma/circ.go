package dma

import (
	"slices"
	"sync/atomic"
	"unsafe"
)

// CircBuffer is a double buffer for circular transfers from a
// peripheral. The stream fills the two halves in turn and software reads
// the half the stream is not writing.
type CircBuffer[E Word, C Channel] struct {
	data  []E
	half  int
	state atomic.Uint32
	// next is the half Read hands out next. While software keeps up, it
	// is the half the stream is filling.
	next int
}

// NewCircBuffer returns a buffer of two halves, each a copy of half.
func NewCircBuffer[E Word, C Channel](half []E) *CircBuffer[E, C] {
	if len(half) == 0 {
		panic("dma: empty buffer")
	}
	data := make([]E, 0, 2*len(half))
	data = append(data, half...)
	data = append(data, half...)
	return &CircBuffer[E, C]{data: data, half: len(half)}
}

// HalfLen returns the number of elements in each half.
func (b *CircBuffer[E, C]) HalfLen() int {
	return b.half
}

// Readable returns the index of the half software may read: the one the
// stream completed last and is not writing.
func (b *CircBuffer[E, C]) Readable() int {
	return b.next ^ 1
}

// Next returns the index of the half Read hands out next, once the
// stream completes it.
func (b *CircBuffer[E, C]) Next() int {
	return b.next
}

// State returns the current ownership state.
func (b *CircBuffer[E, C]) State() State {
	return State(b.state.Load())
}

// Lock returns a copy of both halves while the buffer is not running.
func (b *CircBuffer[E, C]) Lock() ([][]E, error) {
	if b.State() != Free {
		return nil, ErrInUse
	}
	return [][]E{slices.Clone(b.data[:b.half]), slices.Clone(b.data[b.half:])}, nil
}

// StartCircular starts filling buf continuously from the peripheral data
// register at bus address periph. The stream raises half and full
// transfer interrupts, one per half.
func StartCircular[E Word, C Channel](c *Controller, buf *CircBuffer[E, C], periph uint32) error {
	checkCount(len(buf.data))
	id := ID[C]()
	st := c.check(id)
	if st.CR.HasBits(CR_EN) || !c.begin(id) {
		return ErrInUse
	}
	if !buf.state.CompareAndSwap(uint32(Free), uint32(DmaWriting)) {
		c.end(id)
		return ErrInUse
	}
	buf.next = 0
	c.ClearFlags(id, AllFlags)
	var e E
	c.program(st, periph, regionAddr(buf.data), len(buf.data), unsafe.Sizeof(e), PeripheralToMemory, true)
	return nil
}

// Read calls f with the half of the buffer that the stream completed
// last and is not writing. It returns ErrWouldBlock if no half is
// complete and ErrOverrun if the stream completed a half before the
// previous one was read or while f was running; in the latter case the
// contents seen by f may be torn. Read fails with ErrNotDone on a
// stopped buffer.
func (b *CircBuffer[E, C]) Read(c *Controller, f func(half []E)) error {
	return ReadWith(b, c, f, callHalf[E])
}

func callHalf[E Word](half []E, f func(half []E)) {
	f(half)
}

// ReadWith is like Read but passes arg to f. Interrupt handlers use it
// with function literals that capture nothing, which don't allocate.
func ReadWith[E Word, C Channel, A any](b *CircBuffer[E, C], c *Controller, arg A, f func(half []E, arg A)) error {
	if b.State() == Free {
		return ErrNotDone
	}
	id := ID[C]()
	flags := c.Flags(id)
	if flags&TransferError != 0 {
		return ErrTransfer
	}
	expect, other := HalfTransfer, TransferComplete
	if b.next == 1 {
		expect, other = other, expect
	}
	switch {
	case flags&(expect|other) == 0:
		return ErrWouldBlock
	case flags&other != 0:
		// Fell behind; resynchronize with the half the stream is
		// writing.
		c.ClearFlags(id, expect|other)
		b.next = 1
		if c.Remaining(id) > b.half {
			b.next = 0
		}
		return ErrOverrun
	}
	c.ClearFlags(id, expect)
	off := b.next * b.half
	f(b.data[off:off+b.half], arg)
	b.next ^= 1
	if c.Flags(id)&other != 0 {
		return ErrOverrun
	}
	return nil
}

// Stop disables the stream and returns the buffer to software.
func (b *CircBuffer[E, C]) Stop(c *Controller) {
	id := ID[C]()
	c.disable(id)
	c.ClearFlags(id, AllFlags)
	if b.state.Swap(uint32(Free)) != uint32(Free) {
		c.end(id)
	}
}
