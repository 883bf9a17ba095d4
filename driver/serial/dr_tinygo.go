//go:build tinygo

package serial

// Reading DR clears RXNE and, after a read of SR, the error flags.
func readDR(r *Registers) uint32 {
	return r.DR.Get()
}

func writeDR(r *Registers, v uint32) {
	r.DR.Set(v)
}
