//go:build tinygo && stm32f4

package adc

import (
	"device/stm32"

	"github.com/yogk/f4/mmio"
)

var ADC1 = New(mmio.At[Registers](0x4001_2000))

// EnableADC1 powers the ADC and sets the pins of in to analog mode.
func EnableADC1(in ...Input) {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_ADC1EN)
	stm32.RCC.AHB1ENR.SetBits(stm32.RCC_AHB1ENR_GPIOAEN)
	for _, i := range in {
		// Inputs 0-7 are PA0-PA7.
		if i < 8 {
			stm32.GPIOA.MODER.ReplaceBits(0b11, 0b11, uint8(i)*2)
		}
	}
}
