//go:build !linux

package main

import (
	"errors"

	"github.com/yogk/f4/sim"
)

func mappedBoard(path string) (*sim.Board, func() error, error) {
	return nil, nil, errors.New("mem: register files are only supported on linux")
}
