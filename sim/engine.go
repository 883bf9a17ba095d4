// Package sim simulates the STM32F4 DMA controllers, interrupt controller
// and the peripherals the drivers use, so firmware logic runs unmodified
// on the host.
package sim

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/mmio"
	"github.com/yogk/f4/trace"
)

// Device is a peripheral data register taking part in DMA transfers.
type Device interface {
	// Ready reports whether the device has an element for dir
	// PeripheralToMemory or can take one for MemoryToPeripheral.
	Ready(dir dma.Direction) bool
	Load() uint32
	Store(v uint32)
	// Tick advances the device by one step.
	Tick()
}

// Engine moves data for the enabled streams of a DMA controller, one
// element per stream per step.
type Engine struct {
	num  uint8
	regs *dma.Registers
	pend func(stream int)

	mu      sync.Mutex
	devices map[uint32]Device
	rec     *trace.Recorder
	streams [dma.NumStreams]streamState
	steps   atomic.Uint64

	close chan struct{}
}

type streamState struct {
	active bool
	// total is the element count at enable, reloaded in circular mode.
	total uint32
}

// NewEngine returns an engine for controller num operating regs. pend is
// called with the stream number whenever a stream raises an enabled
// interrupt.
func NewEngine(num uint8, regs *dma.Registers, pend func(stream int)) *Engine {
	return &Engine{
		num:     num,
		regs:    regs,
		pend:    pend,
		devices: make(map[uint32]Device),
	}
}

// Attach connects d to the peripheral data register at bus address addr.
func (e *Engine) Attach(addr uint32, d Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices[addr] = d
}

// Record sends stream events to r.
func (e *Engine) Record(r *trace.Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec = r
}

// Step ticks the attached devices and moves at most one element for each
// enabled stream.
func (e *Engine) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.devices {
		d.Tick()
	}
	for s := range e.streams {
		e.step(s)
	}
	e.steps.Add(1)
}

// Steps returns the number of steps taken.
func (e *Engine) Steps() uint64 {
	return e.steps.Load()
}

var errBus = errors.New("bus error")

func (e *Engine) step(s int) {
	st := &e.regs.Streams[s]
	ss := &e.streams[s]
	cr := st.CR.Get()
	if cr&dma.CR_EN == 0 {
		if ss.active {
			ss.active = false
			e.record(s, trace.Disable, nil)
		}
		return
	}
	if !ss.active {
		ss.active = true
		ss.total = st.NDTR.Get() & 0xffff
		e.record(s, trace.Start, nil)
	}
	dir := dma.Direction(cr >> dma.CR_DIR_Pos & dma.CR_DIR_Msk)
	dev := e.devices[st.PAR.Get()]
	if dev != nil && !dev.Ready(dir) {
		return
	}
	// Hold the stream while moving the element.
	if !st.CR.CompareAndSwap(cr, cr|dma.CR_BUSY) {
		return
	}
	ndtr := st.NDTR.Get() & 0xffff
	size := uint32(1) << (cr >> dma.CR_MSIZE_Pos & dma.CR_SIZE_Msk)
	mem := st.M0AR.Get() + (ss.total-ndtr)*size
	if err := e.move(dev, dir, mem, size); err != nil {
		// The hardware disables a stream on a transfer error.
		e.flag(s, cr, dma.TransferError)
		st.CR.ClearBits(dma.CR_BUSY | dma.CR_EN)
		ss.active = false
		return
	}
	ndtr--
	st.NDTR.Set(ndtr)
	clear := uint32(dma.CR_BUSY)
	if ss.total > 1 && ndtr == ss.total/2 {
		e.flag(s, cr, dma.HalfTransfer)
	}
	if ndtr == 0 {
		e.flag(s, cr, dma.TransferComplete)
		if cr&dma.CR_CIRC != 0 {
			st.NDTR.Set(ss.total)
		} else {
			clear |= dma.CR_EN
			ss.active = false
		}
	}
	st.CR.ClearBits(clear)
}

func (e *Engine) move(dev Device, dir dma.Direction, mem, size uint32) error {
	p := mmio.Resolve(mem, uintptr(size))
	if dev == nil || p == nil {
		return errBus
	}
	switch dir {
	case dma.PeripheralToMemory:
		store(p, size, dev.Load())
	case dma.MemoryToPeripheral:
		dev.Store(load(p, size))
	default:
		return errBus
	}
	return nil
}

func load(p unsafe.Pointer, size uint32) uint32 {
	switch size {
	case 1:
		return uint32(*(*uint8)(p))
	case 2:
		return uint32(*(*uint16)(p))
	default:
		return *(*uint32)(p)
	}
}

func store(p unsafe.Pointer, size uint32, v uint32) {
	switch size {
	case 1:
		*(*uint8)(p) = uint8(v)
	case 2:
		*(*uint16)(p) = uint16(v)
	default:
		*(*uint32)(p) = v
	}
}

// flag sets f in the stream's status and pends its interrupt if enabled
// in cr.
func (e *Engine) flag(s int, cr uint32, f dma.Flags) {
	status := &e.regs.LISR
	if s >= 4 {
		status = &e.regs.HISR
	}
	status.SetBits(uint32(f) << dma.FlagShift(s))
	var ie uint32
	var kind trace.Kind
	switch f {
	case dma.TransferError:
		ie, kind = dma.CR_TEIE, trace.Error
	case dma.HalfTransfer:
		ie, kind = dma.CR_HTIE, trace.HalfTransfer
	case dma.TransferComplete:
		ie, kind = dma.CR_TCIE, trace.Complete
	}
	var digest []byte
	if f == dma.TransferComplete {
		digest = e.digest(s, cr)
	}
	e.record(s, kind, digest)
	if cr&ie != 0 && e.pend != nil {
		e.pend(s)
	}
}

func (e *Engine) digest(s int, cr uint32) []byte {
	if e.rec == nil {
		return nil
	}
	st := &e.regs.Streams[s]
	size := uintptr(1) << (cr >> dma.CR_MSIZE_Pos & dma.CR_SIZE_Msk)
	n := uintptr(e.streams[s].total) * size
	p := mmio.Resolve(st.M0AR.Get(), n)
	if p == nil {
		return nil
	}
	return trace.Digest(unsafe.Slice((*byte)(p), n))
}

func (e *Engine) record(s int, k trace.Kind, digest []byte) {
	if e.rec == nil {
		return
	}
	e.rec.Record(trace.Event{
		Controller: e.num,
		Stream:     uint8(s),
		Kind:       k,
		Remaining:  uint16(e.regs.Streams[s].NDTR.Get()),
		Digest:     digest,
	})
}

// Run steps the engine every period in a new goroutine until Close. A
// zero period steps as fast as possible.
func (e *Engine) Run(period time.Duration) {
	e.close = make(chan struct{})
	go func() {
		var tick <-chan time.Time
		if period > 0 {
			t := time.NewTicker(period)
			defer t.Stop()
			tick = t.C
		}
		for {
			if tick != nil {
				select {
				case <-e.close:
					e.close <- struct{}{}
					return
				case <-tick:
				}
			} else {
				select {
				case <-e.close:
					e.close <- struct{}{}
					return
				default:
				}
			}
			e.Step()
			if tick == nil {
				runtime.Gosched()
			}
		}
	}()
}

// Close stops a running engine.
func (e *Engine) Close() error {
	if e.close == nil {
		return nil
	}
	e.close <- struct{}{}
	<-e.close
	e.close = nil
	return nil
}
