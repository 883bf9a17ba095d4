//go:build tinygo && stm32f4

package claim

import "device/arm"

// PriorityBits is the number of NVIC priority bits on the STM32F4.
const PriorityBits = 4

// BASEPRI is the Cortex-M base priority mask register.
type BASEPRI struct{}

func (BASEPRI) Get() Priority {
	hw := uint8(arm.AsmFull("mrs {}, BASEPRI", nil))
	if hw == 0 {
		return 0
	}
	return Priority(1<<PriorityBits) - Priority(hw>>(8-PriorityBits))
}

func (BASEPRI) Set(p Priority) {
	var hw uint8
	if p > 0 {
		hw = HardwarePriority(p, PriorityBits)
	}
	arm.AsmFull("msr BASEPRI, {value}", map[string]interface{}{
		"value": uint32(hw),
	})
}
