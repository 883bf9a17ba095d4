//go:build linux

package mmio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regs")
	size := os.Getpagesize()
	if err := os.WriteFile(path, make([]byte, size), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := Map(path, 0, size)
	if err != nil {
		t.Fatal(err)
	}
	type block struct {
		CR  Register32
		CNT Register32
	}
	b := Block[block](m, 8)
	b.CNT.Set(0x0102_0304)
	if got := Block[Register32](m, 12).Get(); got != 0x0102_0304 {
		t.Errorf("got %#x", got)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if data[12] != 0x04 || data[15] != 0x01 {
		t.Errorf("write not visible in file: % x", data[8:16])
	}
	if _, err := Map(path, 1, size); err == nil {
		t.Error("unaligned offset accepted")
	}
}
