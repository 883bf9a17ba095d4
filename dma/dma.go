// Package dma implements a driver for the STM32F4 DMA controllers and
// the buffers they transfer into and out of.
//
// A buffer handed to a DMA stream is owned by the hardware until the
// transfer completes: the engine reads or writes the memory concurrently
// with the CPU, so software must not touch it in the meantime. Buffers
// track that ownership and refuse access while a stream holds them.
package dma

import (
	"errors"
	"fmt"
)

var (
	// ErrInUse is returned when starting a transfer on an enabled stream
	// or accessing a buffer owned by a stream.
	ErrInUse = errors.New("dma: in use")
	// ErrNotDone is returned when releasing a buffer before the hardware
	// signalled transfer completion.
	ErrNotDone = errors.New("dma: transfer not done")
	// ErrTransfer reports a transfer error flagged by the hardware, such
	// as a bus fault from a misconfigured address. The stream is left
	// disabled and the buffer locked until reset.
	ErrTransfer = errors.New("dma: transfer error")
	// ErrOverrun is returned when the hardware completed a half of a
	// circular buffer before software finished reading the other half.
	ErrOverrun = errors.New("dma: overrun")
	// ErrWouldBlock means the operation can't complete yet and should be
	// retried.
	ErrWouldBlock = errors.New("dma: would block")
)

// Word is the set of element types a stream can move.
type Word interface {
	~uint8 | ~uint16 | ~uint32
}

// StreamID identifies a stream of a DMA controller.
type StreamID struct {
	Controller uint8
	Stream     uint8
}

func (id StreamID) String() string {
	return fmt.Sprintf("DMA%d stream %d", id.Controller, id.Stream)
}

// Channel is implemented by the zero-sized tag types naming a stream.
// Buffers and transfers are parameterized by their tag so a buffer
// declared for one stream can't be started on another.
type Channel interface {
	id() StreamID
}

// ID returns the stream named by the tag C.
func ID[C Channel]() StreamID {
	var c C
	return c.id()
}

type (
	Dma1Stream0 struct{}
	Dma1Stream1 struct{}
	Dma1Stream2 struct{}
	Dma1Stream3 struct{}
	Dma1Stream4 struct{}
	Dma1Stream5 struct{}
	Dma1Stream6 struct{}
	Dma1Stream7 struct{}
	Dma2Stream0 struct{}
	Dma2Stream1 struct{}
	Dma2Stream2 struct{}
	Dma2Stream3 struct{}
	Dma2Stream4 struct{}
	Dma2Stream5 struct{}
	Dma2Stream6 struct{}
	Dma2Stream7 struct{}
)

func (Dma1Stream0) id() StreamID { return StreamID{1, 0} }
func (Dma1Stream1) id() StreamID { return StreamID{1, 1} }
func (Dma1Stream2) id() StreamID { return StreamID{1, 2} }
func (Dma1Stream3) id() StreamID { return StreamID{1, 3} }
func (Dma1Stream4) id() StreamID { return StreamID{1, 4} }
func (Dma1Stream5) id() StreamID { return StreamID{1, 5} }
func (Dma1Stream6) id() StreamID { return StreamID{1, 6} }
func (Dma1Stream7) id() StreamID { return StreamID{1, 7} }
func (Dma2Stream0) id() StreamID { return StreamID{2, 0} }
func (Dma2Stream1) id() StreamID { return StreamID{2, 1} }
func (Dma2Stream2) id() StreamID { return StreamID{2, 2} }
func (Dma2Stream3) id() StreamID { return StreamID{2, 3} }
func (Dma2Stream4) id() StreamID { return StreamID{2, 4} }
func (Dma2Stream5) id() StreamID { return StreamID{2, 5} }
func (Dma2Stream6) id() StreamID { return StreamID{2, 6} }
func (Dma2Stream7) id() StreamID { return StreamID{2, 7} }
