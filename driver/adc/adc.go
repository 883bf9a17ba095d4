// Package adc implements a driver for the STM32F4 ADC1 sampling
// continuously into a circular DMA buffer.
package adc

import (
	"fmt"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/mmio"
)

// Registers is the ADC register block.
type Registers struct {
	SR    mmio.Register32
	CR1   mmio.Register32
	CR2   mmio.Register32
	SMPR1 mmio.Register32
	SMPR2 mmio.Register32
	JOFR  [4]mmio.Register32
	HTR   mmio.Register32
	LTR   mmio.Register32
	SQR1  mmio.Register32
	SQR2  mmio.Register32
	SQR3  mmio.Register32
	JSQR  mmio.Register32
	JDR   [4]mmio.Register32
	DR    mmio.Register32
}

const (
	SR_EOC = 0b1 << 1
	SR_OVR = 0b1 << 5

	CR1_SCAN = 0b1 << 8

	CR2_ADON    = 0b1 << 0
	CR2_CONT    = 0b1 << 1
	CR2_DMA     = 0b1 << 8
	CR2_DDS     = 0b1 << 9
	CR2_SWSTART = 0b1 << 30

	SQR1_L_Pos = 20
	SQR1_L_Msk = 0b1111
	sqMsk      = 0b11111
)

// Channel is the DMA stream of ADC1.
type Channel = dma.Dma2Stream0

// Buffer is the circular sample buffer of ADC1.
type Buffer = dma.CircBuffer[uint16, Channel]

// MaxRank is the length of the regular conversion sequence.
const MaxRank = 16

// Input is an analog input channel.
type Input uint8

// ADC is an analog to digital converter.
type ADC struct {
	regs *Registers
	// ranks is the length of the conversion sequence.
	ranks int
}

func New(regs *Registers) *ADC {
	return &ADC{regs: regs}
}

func (a *ADC) Registers() *Registers {
	return a.regs
}

// Configure sets up the ADC for DMA transfers of its conversions and the
// DMA stream for circular transfers with half and full interrupts.
func (a *ADC) Configure(c *dma.Controller) error {
	err := c.Configure(dma.ID[Channel](), dma.Config{
		Request:    0,
		Priority:   dma.Medium,
		Interrupts: dma.HalfTransfer | dma.TransferComplete | dma.TransferError,
	})
	if err != nil {
		return fmt.Errorf("adc: %w", err)
	}
	a.regs.CR2.Set(CR2_DMA | CR2_DDS)
	return nil
}

// EnableInput samples in at position rank (1-16) of the conversion
// sequence.
func (a *ADC) EnableInput(in Input, rank int) {
	if in > 18 {
		panic(fmt.Sprintf("adc: invalid input %d", in))
	}
	if rank < 1 || rank > MaxRank {
		panic(fmt.Sprintf("adc: invalid rank %d", rank))
	}
	r := a.regs
	i := rank - 1
	switch {
	case i < 6:
		r.SQR3.ReplaceBits(uint32(in), sqMsk, uint8(i*5))
	case i < 12:
		r.SQR2.ReplaceBits(uint32(in), sqMsk, uint8((i-6)*5))
	default:
		r.SQR1.ReplaceBits(uint32(in), sqMsk, uint8((i-12)*5))
	}
	a.ranks = max(a.ranks, rank)
	r.SQR1.ReplaceBits(uint32(a.ranks-1), SQR1_L_Msk, SQR1_L_Pos)
	if a.ranks > 1 {
		r.CR1.SetBits(CR1_SCAN)
	}
}

// Inputs returns the number of ranks in the conversion sequence.
func (a *ADC) Inputs() int {
	return a.ranks
}

func (a *ADC) Enable() {
	a.regs.CR2.SetBits(CR2_ADON)
}

func (a *ADC) Disable() {
	a.regs.CR2.ClearBits(CR2_ADON)
}

// Start converts continuously into buf. The stream interrupts each time
// a half of buf is filled.
func (a *ADC) Start(c *dma.Controller, buf *Buffer) error {
	if err := dma.StartCircular(c, buf, a.regs.DR.Addr()); err != nil {
		return fmt.Errorf("adc: %w", err)
	}
	a.regs.CR2.SetBits(CR2_CONT | CR2_SWSTART)
	return nil
}

// Stop ends conversions and returns buf to software.
func (a *ADC) Stop(c *dma.Controller, buf *Buffer) {
	a.regs.CR2.ClearBits(CR2_CONT)
	buf.Stop(c)
}
