//go:build !tinygo

package dwt

import "runtime"

// pause lets the goroutines simulating the hardware run between
// attempts.
func pause() {
	runtime.Gosched()
}
