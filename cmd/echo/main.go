//go:build tinygo && stm32f4

// command echo is the echo firmware for STM32F4 boards with USART2 on
// PA2/PA3.
package main

import (
	"device/arm"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/serial"
	"github.com/yogk/f4/dwt"
	"github.com/yogk/f4/firmware/echo"
	"github.com/yogk/f4/units"
	"periph.io/x/conn/v3/physic"
)

// Nucleo boards feed HSE from the ST-LINK MCO.
const hse = 8 * physic.MegaHertz

func main() {
	units.UseClockTree(hse)
	dma.EnableClocks()
	serial.EnableUSART2()
	clock := dwt.CycleCounter{}
	clock.Enable()
	fw := echo.New(serial.USART2, dma.DMA1, clock)
	if err := fw.Init(units.APB1); err != nil {
		panic(err)
	}
	for {
		arm.Asm("wfi")
	}
}
