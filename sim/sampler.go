package sim

import (
	"sync"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/adc"
)

// Sampler simulates an ADC converting continuously. Conversion n of the
// sequence yields Sample(n), or n itself when Sample is nil.
type Sampler struct {
	regs *adc.Registers

	mu     sync.Mutex
	n      int
	dr     uint32
	sample func(n int) uint16
}

var _ Device = (*Sampler)(nil)

func NewSampler(regs *adc.Registers, sample func(n int) uint16) *Sampler {
	return &Sampler{regs: regs, sample: sample}
}

// Conversions returns the number of conversions so far.
func (s *Sampler) Conversions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *Sampler) Ready(dir dma.Direction) bool {
	r := s.regs
	return dir == dma.PeripheralToMemory && r.CR2.HasBits(adc.CR2_DMA) && r.SR.HasBits(adc.SR_EOC)
}

func (s *Sampler) Load() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs.SR.ClearBits(adc.SR_EOC)
	return s.dr
}

func (s *Sampler) Store(uint32) {}

// Tick completes a conversion once the previous result was read.
func (s *Sampler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.regs
	cr2 := r.CR2.Get()
	if cr2&adc.CR2_ADON == 0 || cr2&(adc.CR2_CONT|adc.CR2_SWSTART) == 0 || r.SR.HasBits(adc.SR_EOC) {
		return
	}
	r.CR2.ClearBits(adc.CR2_SWSTART)
	v := uint16(s.n)
	if s.sample != nil {
		v = s.sample(s.n)
	}
	s.n++
	s.dr = uint32(v)
	r.DR.Set(s.dr)
	r.SR.SetBits(adc.SR_EOC)
}
