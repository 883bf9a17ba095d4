package sim

import (
	"time"

	"github.com/yogk/f4/claim"
	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/adc"
	"github.com/yogk/f4/driver/serial"
	"github.com/yogk/f4/trace"
	"github.com/yogk/f4/units"
)

// Board is a simulated STM32F4 with the peripherals the drivers use.
type Board struct {
	NVIC    *NVIC
	DMA1    *dma.Controller
	DMA2    *dma.Controller
	USART2  *serial.Serial
	UART    *UART
	ADC1    *adc.ADC
	Sampler *Sampler

	engines [2]*Engine
}

// StreamIRQ returns the interrupt line of a DMA stream.
func StreamIRQ(controller uint8, stream int) IRQ {
	return IRQ(int(controller-1)*dma.NumStreams + stream)
}

// dmaLines connects the stream interrupts of a controller to the NVIC.
type dmaLines struct {
	nvic *NVIC
	c    *dma.Controller
	num  uint8
}

func (l *dmaLines) Enable(stream int, prio claim.Priority) {
	l.nvic.Register(StreamIRQ(l.num, stream), prio, func(t claim.Threshold) {
		l.c.HandleInterrupt(stream, t)
	})
}

func (l *dmaLines) Disable(stream int) {
	l.nvic.Unregister(StreamIRQ(l.num, stream))
}

// NewBoard returns a board with ADC1 converting sample values, or a
// counter when sample is nil.
func NewBoard(sample func(n int) uint16) *Board {
	return NewBoardAt(sample, nil, nil)
}

// NewBoardAt is like NewBoard but places the DMA controller registers at
// dma1 and dma2, such as blocks of a shared memory mapping. Nil blocks
// are allocated.
func NewBoardAt(sample func(n int) uint16, dma1, dma2 *dma.Registers) *Board {
	b := &Board{NVIC: NewNVIC()}
	for i, regs := range []*dma.Registers{dma1, dma2} {
		num := uint8(i + 1)
		if regs == nil {
			regs = new(dma.Registers)
		}
		lines := &dmaLines{nvic: b.NVIC, num: num}
		c := dma.NewController(num, regs, lines)
		lines.c = c
		b.engines[i] = NewEngine(num, regs, func(s int) {
			b.NVIC.Pend(StreamIRQ(num, s))
		})
		if num == 1 {
			b.DMA1 = c
		} else {
			b.DMA2 = c
		}
	}
	uregs := new(serial.Registers)
	b.USART2 = serial.New(uregs)
	b.UART = NewUART(uregs)
	b.engines[0].Attach(uregs.DR.Addr(), b.UART)

	aregs := new(adc.Registers)
	b.ADC1 = adc.New(aregs)
	b.Sampler = NewSampler(aregs, sample)
	b.engines[1].Attach(aregs.DR.Addr(), b.Sampler)
	return b
}

// Engine returns the engine of DMA controller num.
func (b *Board) Engine(num uint8) *Engine {
	return b.engines[num-1]
}

// Step steps both DMA controllers and their peripherals.
func (b *Board) Step() {
	for _, e := range b.engines {
		e.Step()
	}
}

// StepN steps n times.
func (b *Board) StepN(n int) {
	for i := 0; i < n; i++ {
		b.Step()
	}
}

// Record sends the events of both controllers to r.
func (b *Board) Record(r *trace.Recorder) {
	for _, e := range b.engines {
		e.Record(r)
	}
}

// Run steps the simulation in the background until Close.
func (b *Board) Run(period time.Duration) {
	for _, e := range b.engines {
		e.Run(period)
	}
}

func (b *Board) Close() error {
	for _, e := range b.engines {
		e.Close()
	}
	return nil
}

// StepTime is the bus time a step represents.
const StepTime = time.Microsecond

// Cycles counts AHB1 cycles of simulated time, derived from the steps of
// the busiest controller. Deadlines measured with it only pass while the
// simulation makes progress, however the host schedules it.
func (b *Board) Cycles() uint32 {
	steps := max(b.engines[0].Steps(), b.engines[1].Steps())
	perStep := uint64(b.cyclesPerStep())
	return uint32(steps * perStep)
}

func (b *Board) cyclesPerStep() uint32 {
	return uint32(uint64(units.AHB1.Hertz()) * uint64(StepTime) / uint64(time.Second))
}
