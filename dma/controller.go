package dma

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yogk/f4/claim"
	"github.com/yogk/f4/mmio"
)

const NumStreams = 8

// Registers is the register block of a DMA controller.
type Registers struct {
	LISR    mmio.Register32
	HISR    mmio.Register32
	LIFCR   mmio.Register32
	HIFCR   mmio.Register32
	Streams [NumStreams]StreamRegisters
}

// StreamRegisters is the register block of a single stream.
type StreamRegisters struct {
	CR   mmio.Register32
	NDTR mmio.Register32
	PAR  mmio.Register32
	M0AR mmio.Register32
	M1AR mmio.Register32
	FCR  mmio.Register32
}

// Stream configuration register bits.
const (
	CR_EN     = 0b1 << 0
	CR_DMEIE  = 0b1 << 1
	CR_TEIE   = 0b1 << 2
	CR_HTIE   = 0b1 << 3
	CR_TCIE   = 0b1 << 4
	CR_PFCTRL = 0b1 << 5
	CR_CIRC   = 0b1 << 8
	CR_PINC   = 0b1 << 9
	CR_MINC   = 0b1 << 10

	CR_DIR_Pos    = 6
	CR_DIR_Msk    = 0b11
	CR_PSIZE_Pos  = 11
	CR_MSIZE_Pos  = 13
	CR_SIZE_Msk   = 0b11
	CR_PL_Pos     = 16
	CR_PL_Msk     = 0b11
	CR_CHSEL_Pos  = 25
	CR_CHSEL_Msk  = 0b111
	crTransferMsk = CR_DIR_Msk<<CR_DIR_Pos | CR_CIRC | CR_PINC | CR_MINC |
		CR_SIZE_Msk<<CR_PSIZE_Pos | CR_SIZE_Msk<<CR_MSIZE_Pos
)

// Flags are the interrupt status flags of a stream.
type Flags uint32

const (
	FIFOError        Flags = 0b1 << 0
	DirectModeError  Flags = 0b1 << 2
	TransferError    Flags = 0b1 << 3
	HalfTransfer     Flags = 0b1 << 4
	TransferComplete Flags = 0b1 << 5

	AllFlags = FIFOError | DirectModeError | TransferError | HalfTransfer | TransferComplete
)

// Bit offsets of the stream flag groups within LISR/HISR and
// LIFCR/HIFCR.
var flagShift = [4]uint8{0, 6, 16, 22}

// FlagShift returns the position of the flags of stream s in its status
// register.
func FlagShift(s int) uint8 {
	return flagShift[s%4]
}

// Direction of a transfer.
type Direction uint8

const (
	PeripheralToMemory Direction = 0b00
	MemoryToPeripheral Direction = 0b01
)

func (d Direction) String() string {
	switch d {
	case PeripheralToMemory:
		return "peripheral-to-memory"
	case MemoryToPeripheral:
		return "memory-to-peripheral"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Level is the arbitration priority of a stream.
type Level uint8

const (
	Low Level = iota
	Medium
	High
	VeryHigh
)

// Config is the static part of a stream's configuration. Transfers fill
// in direction, element size and addresses when started.
type Config struct {
	// Request selects the peripheral request line (CHSEL).
	Request uint8
	// Priority is the arbitration priority between streams.
	Priority Level
	// Interrupts enables the interrupts for the given flags.
	Interrupts Flags
}

// Lines enables and disables the interrupt lines of a controller's
// streams in the interrupt controller.
type Lines interface {
	Enable(stream int, prio claim.Priority)
	Disable(stream int)
}

type irqHandler struct {
	prio claim.Priority
	fn   func(t claim.Threshold)
}

// Controller is a DMA controller.
type Controller struct {
	num   uint8
	regs  *Registers
	lines Lines

	// outstanding has a bit set for every stream with a transfer that
	// was not yet waited for, released, reset or stopped.
	outstanding atomic.Uint32

	mu sync.Mutex
	// reserved tracks the bitset of reserved streams.
	reserved uint8
	handlers [NumStreams]irqHandler
}

// NewController returns a driver for controller number num (1 or 2)
// with the given registers.
func NewController(num uint8, regs *Registers, lines Lines) *Controller {
	return &Controller{num: num, regs: regs, lines: lines}
}

func (c *Controller) Num() uint8 {
	return c.num
}

// Registers returns the register block of c.
func (c *Controller) Registers() *Registers {
	return c.regs
}

func (c *Controller) check(id StreamID) *StreamRegisters {
	if id.Controller != c.num {
		panic(fmt.Sprintf("dma: %v used with DMA%d", id, c.num))
	}
	return &c.regs.Streams[id.Stream]
}

// Stream returns the registers of the stream id.
func (c *Controller) Stream(id StreamID) *StreamRegisters {
	return c.check(id)
}

func (c *Controller) status(s int) *mmio.Register32 {
	if s < 4 {
		return &c.regs.LISR
	}
	return &c.regs.HISR
}

func (c *Controller) clear(s int) *mmio.Register32 {
	if s < 4 {
		return &c.regs.LIFCR
	}
	return &c.regs.HIFCR
}

// Flags returns the status flags of stream id.
func (c *Controller) Flags(id StreamID) Flags {
	c.check(id)
	s := int(id.Stream)
	return Flags(c.status(s).Get()>>FlagShift(s)) & AllFlags
}

// ClearFlags acknowledges the flags f of stream id.
func (c *Controller) ClearFlags(id StreamID, f Flags) {
	c.check(id)
	s := int(id.Stream)
	mask := uint32(f&AllFlags) << FlagShift(s)
	acknowledge(c.status(s), c.clear(s), mask)
}

// Enabled reports whether stream id is enabled.
func (c *Controller) Enabled(id StreamID) bool {
	return c.check(id).CR.HasBits(CR_EN)
}

// Configure sets the static configuration of stream id. The stream must
// be disabled.
func (c *Controller) Configure(id StreamID, conf Config) error {
	st := c.check(id)
	if st.CR.HasBits(CR_EN) {
		return ErrInUse
	}
	if conf.Request > CR_CHSEL_Msk {
		panic(fmt.Sprintf("dma: request line %d out of range", conf.Request))
	}
	var ie uint32
	if conf.Interrupts&TransferComplete != 0 {
		ie |= CR_TCIE
	}
	if conf.Interrupts&HalfTransfer != 0 {
		ie |= CR_HTIE
	}
	if conf.Interrupts&TransferError != 0 {
		ie |= CR_TEIE
	}
	if conf.Interrupts&DirectModeError != 0 {
		ie |= CR_DMEIE
	}
	st.CR.Set(uint32(conf.Request)<<CR_CHSEL_Pos |
		uint32(conf.Priority&CR_PL_Msk)<<CR_PL_Pos |
		ie)
	// Direct mode; the FIFO is not used.
	st.FCR.Set(0)
	return nil
}

// begin marks stream id as having an outstanding transfer. It reports
// false if it already has one.
func (c *Controller) begin(id StreamID) bool {
	bit := uint32(0b1) << id.Stream
	for {
		old := c.outstanding.Load()
		if old&bit != 0 {
			return false
		}
		if c.outstanding.CompareAndSwap(old, old|bit) {
			return true
		}
	}
}

// end clears the outstanding transfer of stream id.
func (c *Controller) end(id StreamID) {
	bit := uint32(0b1) << id.Stream
	for {
		old := c.outstanding.Load()
		if c.outstanding.CompareAndSwap(old, old&^bit) {
			return
		}
	}
}

// Busy reports whether stream id has an outstanding transfer.
func (c *Controller) Busy(id StreamID) bool {
	c.check(id)
	return c.outstanding.Load()&(0b1<<id.Stream) != 0
}

// maxCount is the largest element count of a transfer.
const maxCount = 0xffff

func checkCount(n int) {
	if n <= 0 || n > maxCount {
		panic(fmt.Sprintf("dma: transfer of %d elements out of range", n))
	}
}

// program writes the addresses, count and transfer mode of a disabled
// stream and enables it.
func (c *Controller) program(st *StreamRegisters, periph, mem uint32, n int, size uintptr, dir Direction, circular bool) {
	checkCount(n)
	var sz uint32
	switch size {
	case 1:
		sz = 0b00
	case 2:
		sz = 0b01
	case 4:
		sz = 0b10
	default:
		panic("dma: invalid element size")
	}
	st.PAR.Set(periph)
	st.M0AR.Set(mem)
	st.NDTR.Set(uint32(n))
	cr := uint32(dir)<<CR_DIR_Pos | CR_MINC | sz<<CR_PSIZE_Pos | sz<<CR_MSIZE_Pos
	if circular {
		cr |= CR_CIRC
	}
	st.CR.Set(st.CR.Get()&^crTransferMsk | cr)
	st.CR.SetBits(CR_EN)
}

// disable clears the enable bit of stream id and waits for the hardware
// to acknowledge it.
func (c *Controller) disable(id StreamID) {
	st := c.check(id)
	st.CR.ClearBits(CR_EN)
	for st.CR.HasBits(CR_EN | CR_BUSY) {
	}
}

// Abort disables stream id before its transfer completes. The buffer of
// the aborted transfer stays locked; its contents are undefined and it
// must be reclaimed with Reset.
func (c *Controller) Abort(id StreamID) {
	c.disable(id)
}

// Remaining returns the number of elements the stream has left to
// transfer.
func (c *Controller) Remaining(id StreamID) int {
	return int(c.check(id).NDTR.Get() & 0xffff)
}

// SetInterrupt installs fn as the handler of stream id's interrupt at
// priority prio. A nil fn removes the handler.
func (c *Controller) SetInterrupt(id StreamID, prio claim.Priority, fn func(t claim.Threshold)) error {
	c.check(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &c.handlers[id.Stream]
	if fn == nil {
		if c.lines != nil {
			c.lines.Disable(int(id.Stream))
		}
		*h = irqHandler{}
		return nil
	}
	if h.fn != nil {
		return fmt.Errorf("dma: interrupt of %v: %w", id, errHandlerSet)
	}
	*h = irqHandler{prio: prio, fn: fn}
	if c.lines != nil {
		c.lines.Enable(int(id.Stream), prio)
	}
	return nil
}

var errHandlerSet = errors.New("handler already set")

// Reserve claims a stream for a user that doesn't need a particular
// request mapping. Streams are handed out from the highest number down,
// leaving the low streams to fixed peripheral mappings.
func (c *Controller) Reserve() (StreamID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := NumStreams - 1; s >= 0; s-- {
		if c.reserved&(0b1<<s) == 0 {
			c.reserved |= 0b1 << s
			return StreamID{c.num, uint8(s)}, nil
		}
	}
	return StreamID{}, fmt.Errorf("dma: no available stream on DMA%d", c.num)
}

// ReserveStream claims the stream id. It fails if the stream is already
// reserved.
func (c *Controller) ReserveStream(id StreamID) error {
	c.check(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved&(0b1<<id.Stream) != 0 {
		return fmt.Errorf("dma: %v: %w", id, ErrInUse)
	}
	c.reserved |= 0b1 << id.Stream
	return nil
}

// Unreserve returns stream id to the pool.
func (c *Controller) Unreserve(id StreamID) {
	c.check(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved &^= 0b1 << id.Stream
}

// Priority returns the priority of the interrupt handler of stream s.
func (c *Controller) Priority(s int) claim.Priority {
	return c.handlers[s].prio
}

// HandleInterrupt is called by the interrupt dispatcher for stream s with
// the threshold of the handler's priority.
func (c *Controller) HandleInterrupt(s int, t claim.Threshold) {
	h := c.handlers[s]
	if h.fn == nil {
		// Acknowledge to avoid an interrupt storm.
		id := StreamID{c.num, uint8(s)}
		c.ClearFlags(id, AllFlags)
		return
	}
	h.fn(t)
}
