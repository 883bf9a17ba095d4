//go:build tinygo

package dwt

func pause() {}
