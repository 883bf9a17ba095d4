package dma

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// Transfer is an in-flight one-shot transfer. It owns its payload, the
// buffer and whatever else was moved into the transfer, until Wait hands
// it back. A stream has at most one outstanding transfer.
type Transfer[P any] struct {
	c       *Controller
	id      StreamID
	state   *atomic.Uint32
	payload P
	waited  bool
}

// Start transfers the contents of buf to or from the peripheral data
// register at bus address periph. It fails with ErrInUse if the stream
// is enabled or has a transfer not yet waited for or released, or if buf
// is locked.
func Start[E Word, C Channel](c *Controller, buf *Buffer[E, C], periph uint32, dir Direction) (Transfer[*Buffer[E, C]], error) {
	return StartWith(c, buf, buf.Len(), periph, dir, buf)
}

// StartWith is like Start but transfers only the first n elements of buf
// and moves payload into the transfer instead of the buffer. Drivers use
// it to hold on to peripheral halves for the duration of the transfer.
// The whole buffer is locked regardless of n.
func StartWith[E Word, C Channel, P any](c *Controller, buf *Buffer[E, C], n int, periph uint32, dir Direction, payload P) (Transfer[P], error) {
	if n <= 0 || n > buf.Len() {
		panic(fmt.Sprintf("dma: transfer of %d elements from a buffer of %d", n, buf.Len()))
	}
	checkCount(n)
	id := ID[C]()
	st := c.check(id)
	if st.CR.HasBits(CR_EN) || !c.begin(id) {
		return Transfer[P]{}, ErrInUse
	}
	mem, err := buf.acquire(dir)
	if err != nil {
		c.end(id)
		return Transfer[P]{}, err
	}
	// Flags left over from the previous transfer would complete this one
	// immediately.
	c.ClearFlags(id, AllFlags)
	var e E
	c.program(st, periph, mem, n, unsafe.Sizeof(e), dir, false)
	return Transfer[P]{
		c:       c,
		id:      id,
		state:   &buf.state,
		payload: payload,
	}, nil
}

// Stream returns the stream of the transfer.
func (t *Transfer[P]) Stream() StreamID {
	return t.id
}

// IsDone reports whether the transfer has completed, without blocking.
// It returns ErrTransfer if the hardware flagged a transfer error.
func (t *Transfer[P]) IsDone() (bool, error) {
	f := t.c.Flags(t.id)
	if f&TransferError != 0 {
		return false, ErrTransfer
	}
	return f&TransferComplete != 0, nil
}

// Wait spins until the transfer completes, disables the stream and
// returns the payload with the buffer free again. After a transfer error
// the payload is returned with ErrTransfer and the buffer stays locked
// until reset. Wait must not be called after the stream was aborted.
func (t *Transfer[P]) Wait() (P, error) {
	if t.waited || t.c == nil {
		panic("dma: transfer already waited for")
	}
	t.waited = true
	for {
		done, err := t.IsDone()
		if err != nil {
			t.c.disable(t.id)
			t.c.end(t.id)
			return t.payload, err
		}
		if done {
			break
		}
		runtime.Gosched()
	}
	t.c.ClearFlags(t.id, TransferComplete|HalfTransfer)
	t.c.disable(t.id)
	t.state.Store(uint32(Free))
	t.c.end(t.id)
	return t.payload, nil
}
