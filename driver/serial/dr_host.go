//go:build !tinygo

package serial

import "sync"

// DataRegister models the side effects of accessing a USART data
// register, which is a separate receive and transmit register behind one
// address on hardware.
type DataRegister interface {
	ReadDR() uint32
	WriteDR(v uint32)
}

var simulated sync.Map // *Registers -> DataRegister

// Simulate routes data register accesses through r to d.
func Simulate(r *Registers, d DataRegister) {
	simulated.Store(r, d)
}

func readDR(r *Registers) uint32 {
	if d, ok := simulated.Load(r); ok {
		return d.(DataRegister).ReadDR()
	}
	v := r.DR.Get()
	r.SR.ClearBits(SR_RXNE | srErrors)
	return v
}

func writeDR(r *Registers, v uint32) {
	if d, ok := simulated.Load(r); ok {
		d.(DataRegister).WriteDR(v)
		return
	}
	r.DR.Set(v)
	r.SR.ClearBits(SR_TXE | SR_TC)
}
