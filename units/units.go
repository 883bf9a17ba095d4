// Package units converts between clock ticks of the on-chip buses and
// real time units.
package units

import (
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Bps is a bit rate in bits per second.
type Bps uint32

// Hertz is a frequency.
type Hertz uint32

type Microseconds uint32

type Milliseconds uint32

type Seconds uint32

// Ticks is a number of clock cycles of some bus.
type Ticks uint32

// Period returns the duration of one cycle at h.
func (h Hertz) Period() time.Duration {
	return time.Second / time.Duration(h)
}

// Frequency converts h to a physic.Frequency.
func (h Hertz) Frequency() physic.Frequency {
	return physic.Frequency(h) * physic.Hertz
}

// Bus is a clock domain whose frequency every tick conversion of the
// peripherals attached to it depends on.
type Bus struct {
	name string
	// Frequency in Hz. Updated by the clock tree at init, read from
	// anywhere.
	hz atomic.Uint32
}

// Reset frequencies, running from the 16 MHz internal oscillator.
var (
	AHB1 = newBus("ahb1", 16*physic.MegaHertz)
	APB1 = newBus("apb1", 16*physic.MegaHertz)
	APB2 = newBus("apb2", 16*physic.MegaHertz)
)

func newBus(name string, f physic.Frequency) *Bus {
	b := &Bus{name: name}
	b.Set(f)
	return b
}

// Set updates the bus frequency. It panics if f is not a whole number of
// hertz in the 32-bit range.
func (b *Bus) Set(f physic.Frequency) {
	hz := f / physic.Hertz
	if hz <= 0 || hz*physic.Hertz != f || hz > 1<<32-1 {
		panic(fmt.Sprintf("units: invalid %s frequency %v", b.name, f))
	}
	b.hz.Store(uint32(hz))
}

// Frequency returns the bus frequency.
func (b *Bus) Frequency() physic.Frequency {
	return physic.Frequency(b.hz.Load()) * physic.Hertz
}

// Hertz returns the bus frequency in hertz.
func (b *Bus) Hertz() Hertz {
	return Hertz(b.hz.Load())
}

func (b *Bus) String() string {
	return fmt.Sprintf("%s@%v", b.name, b.Frequency())
}

// Use84MHz records the bus frequencies of the 84 MHz PLL profile: a
// 84 MHz core and APB2, and APB1 at half speed. It does not touch the
// clock tree; firmware running from another configuration must use
// UseRCC instead.
func Use84MHz() {
	AHB1.Set(84 * physic.MegaHertz)
	APB1.Set(42 * physic.MegaHertz)
	APB2.Set(84 * physic.MegaHertz)
}

// Clock sources of the RCC.
const (
	HSI = 16 * physic.MegaHertz
)

// RCC decodes the bus frequencies of a running clock tree from the
// RCC_CFGR and RCC_PLLCFGR register values. hse is the frequency of the
// external oscillator, if the board has one.
func RCC(cfgr, pllcfgr uint32, hse physic.Frequency) (ahb1, apb1, apb2 physic.Frequency) {
	var sys physic.Frequency
	switch (cfgr >> 2) & 0b11 {
	case 0b00:
		sys = HSI
	case 0b01:
		sys = hse
	default:
		src := HSI
		if pllcfgr&(1<<22) != 0 {
			src = hse
		}
		m := physic.Frequency(pllcfgr & 0x3f)
		n := physic.Frequency((pllcfgr >> 6) & 0x1ff)
		p := physic.Frequency(((pllcfgr>>16)&0b11)+1) * 2
		if m == 0 {
			panic("units: PLLM is zero")
		}
		sys = src / m * n / p
	}
	ahb1 = sys >> ahbShift((cfgr>>4)&0xf)
	apb1 = ahb1 >> apbShift((cfgr>>10)&0b111)
	apb2 = ahb1 >> apbShift((cfgr>>13)&0b111)
	return
}

func ahbShift(hpre uint32) uint {
	if hpre < 0b1000 {
		return 0
	}
	s := uint(hpre-0b1000) + 1
	// No divide by 32.
	if s >= 5 {
		s++
	}
	return s
}

func apbShift(ppre uint32) uint {
	if ppre < 0b100 {
		return 0
	}
	return uint(ppre-0b100) + 1
}

// UseRCC records the bus frequencies decoded by RCC.
func UseRCC(cfgr, pllcfgr uint32, hse physic.Frequency) {
	ahb1, apb1, apb2 := RCC(cfgr, pllcfgr, hse)
	AHB1.Set(ahb1)
	APB1.Set(apb1)
	APB2.Set(apb2)
}

// Reset restores the reset frequencies.
func Reset() {
	for _, b := range []*Bus{AHB1, APB1, APB2} {
		b.Set(16 * physic.MegaHertz)
	}
}

func (b *Bus) FromHertz(h Hertz) Ticks {
	return Ticks(uint32(b.Hertz()) / uint32(h))
}

func (b *Bus) FromBps(r Bps) Ticks {
	return Ticks(uint32(b.Hertz()) / uint32(r))
}

func (b *Bus) FromMicroseconds(us Microseconds) Ticks {
	return Ticks(uint32(us) * (uint32(b.Hertz()) / 1_000_000))
}

func (b *Bus) FromMilliseconds(ms Milliseconds) Ticks {
	return Ticks(uint32(ms) * (uint32(b.Hertz()) / 1_000))
}

func (b *Bus) FromSeconds(s Seconds) Ticks {
	return Ticks(uint32(s) * uint32(b.Hertz()))
}

func (b *Bus) Microseconds(t Ticks) Microseconds {
	return Microseconds(uint32(t) / (uint32(b.Hertz()) / 1_000_000))
}

func (b *Bus) Milliseconds(t Ticks) Milliseconds {
	return Milliseconds(uint32(t) / (uint32(b.Hertz()) / 1_000))
}

func (b *Bus) Seconds(t Ticks) Seconds {
	return Seconds(uint32(t) / uint32(b.Hertz()))
}

// Duration converts t to a time.Duration.
func (b *Bus) Duration(t Ticks) time.Duration {
	return time.Duration(t) * time.Second / time.Duration(b.Hertz())
}

// BaudDivisor returns the USART divisor for rate r. An unreachable rate is
// a configuration error and panics.
func (b *Bus) BaudDivisor(r Bps) uint32 {
	if r == 0 {
		panic("units: zero baud rate")
	}
	div := uint32(b.FromBps(r))
	if div < 16 {
		panic(fmt.Sprintf("units: impossible baud rate %d on %s", r, b))
	}
	return div
}
