//go:build linux

package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/serial"
	"github.com/yogk/f4/firmware/echo"
	"github.com/yogk/f4/units"
)

func TestMappedRegisters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dma.mem")
	b, unmap, err := mappedBoard(path)
	if err != nil {
		t.Fatal(err)
	}
	defer unmap()
	fw := echo.New(b.USART2, b.DMA1, b)
	if err := fw.Init(units.APB1); err != nil {
		t.Fatal(err)
	}
	// The welcome transfer is visible to readers of the file.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// LISR, HISR, LIFCR and HIFCR precede six registers per stream.
	tx := dma.ID[serial.TxChannel]().Stream
	cr := binary.LittleEndian.Uint32(data[16+24*int(tx):])
	if cr&dma.CR_EN == 0 {
		t.Errorf("transmit stream CR %#x not enabled in file", cr)
	}
	b.StepN(200)
	if got, want := string(b.UART.Transmitted()), "Hello, world! 1\r\n"; got != want {
		t.Errorf("transmitted %q, want %q", got, want)
	}
}
