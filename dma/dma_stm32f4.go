//go:build tinygo && stm32f4

package dma

import (
	"device/stm32"
	"runtime/interrupt"

	"github.com/yogk/f4/claim"
	"github.com/yogk/f4/mmio"
)

var (
	DMA1 = NewController(1, mmio.At[Registers](0x4002_6000), &lines1)
	DMA2 = NewController(2, mmio.At[Registers](0x4002_6400), &lines2)
)

// nvicLines are the interrupt lines of a controller's streams.
type nvicLines [NumStreams]interrupt.Interrupt

var lines1, lines2 nvicLines

func init() {
	lines1 = nvicLines{
		interrupt.New(stm32.IRQ_DMA1_Stream0, func(interrupt.Interrupt) { dispatch(DMA1, 0) }),
		interrupt.New(stm32.IRQ_DMA1_Stream1, func(interrupt.Interrupt) { dispatch(DMA1, 1) }),
		interrupt.New(stm32.IRQ_DMA1_Stream2, func(interrupt.Interrupt) { dispatch(DMA1, 2) }),
		interrupt.New(stm32.IRQ_DMA1_Stream3, func(interrupt.Interrupt) { dispatch(DMA1, 3) }),
		interrupt.New(stm32.IRQ_DMA1_Stream4, func(interrupt.Interrupt) { dispatch(DMA1, 4) }),
		interrupt.New(stm32.IRQ_DMA1_Stream5, func(interrupt.Interrupt) { dispatch(DMA1, 5) }),
		interrupt.New(stm32.IRQ_DMA1_Stream6, func(interrupt.Interrupt) { dispatch(DMA1, 6) }),
		interrupt.New(stm32.IRQ_DMA1_Stream7, func(interrupt.Interrupt) { dispatch(DMA1, 7) }),
	}
	lines2 = nvicLines{
		interrupt.New(stm32.IRQ_DMA2_Stream0, func(interrupt.Interrupt) { dispatch(DMA2, 0) }),
		interrupt.New(stm32.IRQ_DMA2_Stream1, func(interrupt.Interrupt) { dispatch(DMA2, 1) }),
		interrupt.New(stm32.IRQ_DMA2_Stream2, func(interrupt.Interrupt) { dispatch(DMA2, 2) }),
		interrupt.New(stm32.IRQ_DMA2_Stream3, func(interrupt.Interrupt) { dispatch(DMA2, 3) }),
		interrupt.New(stm32.IRQ_DMA2_Stream4, func(interrupt.Interrupt) { dispatch(DMA2, 4) }),
		interrupt.New(stm32.IRQ_DMA2_Stream5, func(interrupt.Interrupt) { dispatch(DMA2, 5) }),
		interrupt.New(stm32.IRQ_DMA2_Stream6, func(interrupt.Interrupt) { dispatch(DMA2, 6) }),
		interrupt.New(stm32.IRQ_DMA2_Stream7, func(interrupt.Interrupt) { dispatch(DMA2, 7) }),
	}
}

func (l *nvicLines) Enable(s int, prio claim.Priority) {
	l[s].SetPriority(claim.HardwarePriority(prio, claim.PriorityBits))
	l[s].Enable()
}

func (l *nvicLines) Disable(s int) {
	l[s].Disable()
}

func dispatch(c *Controller, s int) {
	c.HandleInterrupt(s, claim.NewThreshold(claim.BASEPRI{}, c.Priority(s)))
}

// EnableClocks turns on the clocks of both controllers.
func EnableClocks() {
	stm32.RCC.AHB1ENR.SetBits(stm32.RCC_AHB1ENR_DMA1EN | stm32.RCC_AHB1ENR_DMA2EN)
}
