//go:build tinygo && stm32f4

package units

import (
	"device/stm32"

	"periph.io/x/conn/v3/physic"
)

// UseClockTree records the bus frequencies of the clock tree the runtime
// configured.
func UseClockTree(hse physic.Frequency) {
	UseRCC(stm32.RCC.CFGR.Get(), stm32.RCC.PLLCFGR.Get(), hse)
}
