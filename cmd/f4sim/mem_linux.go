//go:build linux

package main

import (
	"fmt"
	"os"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/mmio"
	"github.com/yogk/f4/sim"
)

// DMA2 follows DMA1 at the same distance as on the chip.
const dma2Offset = 0x400

// mappedBoard returns a board whose DMA registers live in a page of the
// file at path, created if missing, so other processes can watch the
// streams while the simulation runs.
func mappedBoard(path string) (*sim.Board, func() error, error) {
	size := os.Getpagesize()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("mem: %w", err)
	}
	fi, err := f.Stat()
	if err == nil && fi.Mode().IsRegular() && fi.Size() < int64(size) {
		err = f.Truncate(int64(size))
	}
	f.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("mem: %w", err)
	}
	m, err := mmio.Map(path, 0, size)
	if err != nil {
		return nil, nil, err
	}
	// Registers reset to zero.
	clear(m.Bytes())
	b := sim.NewBoardAt(nil, mmio.Block[dma.Registers](m, 0), mmio.Block[dma.Registers](m, dma2Offset))
	return b, m.Close, nil
}
