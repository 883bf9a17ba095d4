// Package sampler implements firmware that converts a sequence of analog
// inputs continuously into a circular DMA buffer and forwards each
// completed scan.
package sampler

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/yogk/f4/claim"
	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/adc"
)

// Priority is the priority of the transfer interrupt.
const Priority claim.Priority = 1

// App is the sampler firmware.
type App struct {
	adc    *adc.ADC
	ctrl   *dma.Controller
	inputs []adc.Input
	buf    *adc.Buffer
	out    func(scan []uint16)

	scans   atomic.Uint32
	overrun atomic.Uint32
}

// New returns the firmware sampling inputs with a through c. Each half
// of the circular buffer holds one scan of all inputs, which is passed
// to out from the interrupt handler. out must not retain the slice.
func New(a *adc.ADC, c *dma.Controller, inputs []adc.Input, out func(scan []uint16)) *App {
	if len(inputs) == 0 || len(inputs) > adc.MaxRank {
		panic(fmt.Sprintf("sampler: %d inputs", len(inputs)))
	}
	return &App{
		adc:    a,
		ctrl:   c,
		inputs: slices.Clone(inputs),
		buf:    dma.NewCircBuffer[uint16, adc.Channel](make([]uint16, len(inputs))),
		out:    out,
	}
}

// Init configures the conversion sequence and starts sampling.
func (a *App) Init() error {
	if err := a.adc.Configure(a.ctrl); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	for i, in := range a.inputs {
		a.adc.EnableInput(in, i+1)
	}
	if err := a.ctrl.SetInterrupt(dma.ID[adc.Channel](), Priority, a.transferDone); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	a.adc.Enable()
	if err := a.adc.Start(a.ctrl, a.buf); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	return nil
}

// Stop ends sampling. The handler is removed before the buffer is
// freed; a handler already running when the buffer is freed finds
// nothing to read.
func (a *App) Stop() {
	a.ctrl.SetInterrupt(dma.ID[adc.Channel](), Priority, nil)
	a.adc.Stop(a.ctrl, a.buf)
	a.adc.Disable()
}

// Scans returns the number of scans forwarded.
func (a *App) Scans() int {
	return int(a.scans.Load())
}

// Overruns returns the number of times the handler fell behind the
// stream.
func (a *App) Overruns() int {
	return int(a.overrun.Load())
}

func (a *App) transferDone(_ claim.Threshold) {
	for {
		err := dma.ReadWith(a.buf, a.ctrl, a, forward)
		switch {
		case err == nil:
			continue
		case errors.Is(err, dma.ErrWouldBlock), errors.Is(err, dma.ErrNotDone):
			return
		case errors.Is(err, dma.ErrOverrun):
			a.overrun.Add(1)
		default:
			panic(err)
		}
	}
}

func forward(half []uint16, a *App) {
	a.scans.Add(1)
	if a.out != nil {
		a.out(half)
	}
}
