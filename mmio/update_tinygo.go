//go:build tinygo

package mmio

// update is a plain read-modify-write. Exclusive loads and stores are not
// supported on device memory; callers racing with interrupt handlers on the
// same register must claim it.
func (r *Register32) update(f func(uint32) uint32) {
	r.Set(f(r.Get()))
}
