//go:build tinygo && stm32f4

package serial

import (
	"device/stm32"

	"github.com/yogk/f4/mmio"
)

// USART2 is wired to PA2 (TX) and PA3 (RX).
var USART2 = New(mmio.At[Registers](0x4000_4400))

// EnableUSART2 powers the USART and routes its pins.
func EnableUSART2() {
	stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_USART2EN)
	stm32.RCC.AHB1ENR.SetBits(stm32.RCC_AHB1ENR_GPIOAEN)
	// AF7 on PA2 and PA3.
	stm32.GPIOA.AFRL.ReplaceBits(7<<8|7<<12, 0xff<<8, 0)
	stm32.GPIOA.MODER.ReplaceBits(0b10<<4|0b10<<6, 0b1111<<4, 0)
}
