package units

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestConversions(t *testing.T) {
	defer Reset()
	Use84MHz()
	tests := []struct {
		name string
		got  Ticks
		want Ticks
	}{
		{"hertz", APB2.FromHertz(1_000), 84_000},
		{"bps", APB1.FromBps(115_200), 364},
		{"us", AHB1.FromMicroseconds(10), 840},
		{"ms", AHB1.FromMilliseconds(50), 4_200_000},
		{"s", APB1.FromSeconds(2), 84_000_000},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("%s: got %d ticks, want %d", test.name, test.got, test.want)
		}
	}
	if got := AHB1.Milliseconds(4_200_000); got != 50 {
		t.Errorf("Milliseconds: got %d", got)
	}
	if got := AHB1.Microseconds(840); got != 10 {
		t.Errorf("Microseconds: got %d", got)
	}
	if got := APB1.Seconds(84_000_000); got != 2 {
		t.Errorf("Seconds: got %d", got)
	}
	if got := AHB1.Duration(84); got != time.Microsecond {
		t.Errorf("Duration: got %v", got)
	}
}

func TestBusFrequency(t *testing.T) {
	defer Reset()
	if got := APB1.Frequency(); got != 16*physic.MegaHertz {
		t.Fatalf("reset frequency %v", got)
	}
	APB1.Set(42 * physic.MegaHertz)
	if got := APB1.Hertz(); got != 42_000_000 {
		t.Errorf("got %d Hz", got)
	}
	if got := Hertz(8).Frequency(); got != 8*physic.Hertz {
		t.Errorf("Hertz.Frequency: %v", got)
	}
	if got := Hertz(8).Period(); got != 125*time.Millisecond {
		t.Errorf("Hertz.Period: %v", got)
	}
}

func TestBaudDivisor(t *testing.T) {
	defer Reset()
	if got := APB2.BaudDivisor(115_200); got != 138 {
		t.Errorf("divisor at 16 MHz: got %d, want 138", got)
	}
	for _, r := range []Bps{0, 2_000_000} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("rate %d did not panic", r)
				}
			}()
			APB2.BaudDivisor(r)
		}()
	}
}

func TestInvalidFrequency(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("fractional frequency accepted")
		}
	}()
	b := newBus("test", physic.Hertz)
	b.Set(physic.Hertz / 2)
}

func TestRCC(t *testing.T) {
	const (
		swsPLL  = 0b10 << 2
		pllHSE  = 1 << 22
		ppre1d2 = 0b100 << 10
		ppre1d4 = 0b101 << 10
		ppre2d2 = 0b100 << 13
		hpred4  = 0b1001 << 4
	)
	pll := func(m, n, p uint32) uint32 {
		return m | n<<6 | (p/2-1)<<16
	}
	tests := []struct {
		name             string
		cfgr, pllcfgr    uint32
		hse              physic.Frequency
		ahb1, apb1, apb2 physic.Frequency
	}{
		{"reset", 0, 0x24003010, 0, 16 * physic.MegaHertz, 16 * physic.MegaHertz, 16 * physic.MegaHertz},
		{"hsi 84MHz", swsPLL | ppre1d2, pll(16, 336, 4), 0, 84 * physic.MegaHertz, 42 * physic.MegaHertz, 84 * physic.MegaHertz},
		{"hse 180MHz", swsPLL | ppre1d4 | ppre2d2, pll(8, 360, 2) | pllHSE, 8 * physic.MegaHertz, 180 * physic.MegaHertz, 45 * physic.MegaHertz, 90 * physic.MegaHertz},
		{"hse direct", 0b01<<2 | hpred4, 0, 25 * physic.MegaHertz, 6250 * physic.KiloHertz, 6250 * physic.KiloHertz, 6250 * physic.KiloHertz},
	}
	for _, test := range tests {
		ahb1, apb1, apb2 := RCC(test.cfgr, test.pllcfgr, test.hse)
		if ahb1 != test.ahb1 || apb1 != test.apb1 || apb2 != test.apb2 {
			t.Errorf("%s: got %v/%v/%v, want %v/%v/%v", test.name, ahb1, apb1, apb2, test.ahb1, test.apb1, test.apb2)
		}
	}
}

func TestUseRCC(t *testing.T) {
	defer Reset()
	UseRCC(0b10<<2|0b100<<10, 16|336<<6|1<<16, 0)
	if AHB1.Hertz() != 84_000_000 || APB1.Hertz() != 42_000_000 || APB2.Hertz() != 84_000_000 {
		t.Errorf("got %v %v %v", AHB1, APB1, APB2)
	}
}
