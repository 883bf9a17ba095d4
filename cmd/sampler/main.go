//go:build tinygo && stm32f4

// command sampler is the sampler firmware. It converts PA0 and PA1 and
// toggles the board LED every 1000 scans.
package main

import (
	"device/arm"
	"machine"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/adc"
	"github.com/yogk/f4/firmware/sampler"
	"github.com/yogk/f4/units"
	"periph.io/x/conn/v3/physic"
)

// Nucleo boards feed HSE from the ST-LINK MCO.
const hse = 8 * physic.MegaHertz

var inputs = []adc.Input{0, 1}

func main() {
	units.UseClockTree(hse)
	dma.EnableClocks()
	adc.EnableADC1(inputs...)
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	n, on := 0, false
	fw := sampler.New(adc.ADC1, dma.DMA2, inputs, func([]uint16) {
		n++
		if n%1000 == 0 {
			on = !on
			led.Set(on)
		}
	})
	if err := fw.Init(); err != nil {
		panic(err)
	}
	for {
		arm.Asm("wfi")
	}
}
