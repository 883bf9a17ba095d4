// command f4sim runs the firmware against a simulated STM32F4 board.
//
// The echo firmware talks to the terminal, or to a serial port with
// -port. The sampler firmware prints every n'th scan. With -trace, the
// DMA events of the run are written to a file in CBOR, which -dump
// prints. With -mem, the DMA registers are mapped from a file that other
// processes can read while the simulation runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-tty"
	tserial "github.com/tarm/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/yogk/f4/driver/adc"
	"github.com/yogk/f4/firmware/echo"
	"github.com/yogk/f4/firmware/sampler"
	"github.com/yogk/f4/sim"
	"github.com/yogk/f4/trace"
	"github.com/yogk/f4/units"
)

var (
	app       = flag.String("app", "echo", "firmware to run, echo or sampler")
	port      = flag.String("port", "", "serial device to connect the USART to instead of the terminal")
	baud      = flag.Int("baud", int(echo.BaudRate), "baud rate of -port")
	traceFile = flag.String("trace", "", "write DMA events to file")
	dumpFile  = flag.String("dump", "", "print the DMA events of a trace file and exit")
	ledPin    = flag.String("led", "", "GPIO pin mirroring the board LED")
	inputs    = flag.String("inputs", "0,1", "comma separated ADC inputs of the sampler")
	every     = flag.Int("every", 1000, "print every n'th scan of the sampler")
	period    = flag.Duration("period", 10*time.Microsecond, "simulated DMA step period")
	memFile   = flag.String("mem", "", "file to map the DMA controller registers from")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "f4sim: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	flag.Parse()
	if *dumpFile != "" {
		return dumpTrace(os.Stdout, *dumpFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	units.Use84MHz()
	b := sim.NewBoard(nil)
	if *memFile != "" {
		mb, unmap, err := mappedBoard(*memFile)
		if err != nil {
			return err
		}
		defer unmap()
		b = mb
	}
	var rec *trace.Recorder
	if *traceFile != "" {
		rec = new(trace.Recorder)
		b.Record(rec)
	}
	led, err := openLED(*ledPin)
	if err != nil {
		return err
	}

	var cleanup func() error
	switch *app {
	case "echo":
		cleanup, err = runEcho(ctx, stop, b, led)
	case "sampler":
		cleanup, err = runSampler(b, led)
	default:
		err = fmt.Errorf("unknown firmware %q", *app)
	}
	if err != nil {
		return err
	}

	idle := make(chan struct{})
	done := make(chan struct{})
	go func() {
		b.NVIC.Idle(idle)
		close(done)
	}()
	b.Run(*period)
	<-ctx.Done()
	close(idle)
	<-done
	b.Close()
	if err := cleanup(); err != nil {
		return err
	}
	if rec != nil {
		return writeTrace(*traceFile, rec.Events())
	}
	return nil
}

func runEcho(ctx context.Context, quit func(), b *sim.Board, led *toggler) (func() error, error) {
	var (
		in  io.Reader
		out io.Writer
		c   io.Closer
	)
	if *port != "" {
		s, err := tserial.OpenPort(&tserial.Config{Name: *port, Baud: *baud})
		if err != nil {
			return nil, fmt.Errorf("echo: %w", err)
		}
		in, out, c = s, s, s
	} else {
		t, err := tty.Open()
		if err != nil {
			return nil, fmt.Errorf("echo: %w", err)
		}
		restore := t.MustRaw()
		in, out = t.Input(), t.Output()
		c = closerFunc(func() error {
			restore()
			return t.Close()
		})
		log.Println("press ctrl-c to quit")
	}
	b.UART.OnTransmit(func(ch byte) {
		out.Write([]byte{ch})
		if ch == '\n' {
			led.Toggle()
		}
	})
	fw := echo.New(b.USART2, b.DMA1, b)
	if err := fw.Init(units.APB1); err != nil {
		c.Close()
		return nil, err
	}
	go func() {
		defer quit()
		buf := make([]byte, 64)
		for {
			n, err := in.Read(buf)
			for _, ch := range buf[:n] {
				// Raw terminals deliver ctrl-c as a byte.
				if ch == 0x03 && *port == "" {
					return
				}
				b.UART.Receive(ch)
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					log.Printf("echo: %v", err)
				}
				return
			}
		}
	}()
	return func() error {
		if n := fw.Dropped(); n > 0 {
			log.Printf("echo: %d bytes dropped", n)
		}
		return c.Close()
	}, nil
}

func runSampler(b *sim.Board, led *toggler) (func() error, error) {
	var ins []adc.Input
	for _, f := range strings.Split(*inputs, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("sampler: invalid input %q", f)
		}
		ins = append(ins, adc.Input(v))
	}
	if len(ins) == 0 || len(ins) > adc.MaxRank {
		return nil, fmt.Errorf("sampler: %d inputs", len(ins))
	}
	n := 0
	fw := sampler.New(b.ADC1, b.DMA2, ins, func(scan []uint16) {
		n++
		if *every > 0 && n%*every == 0 {
			fmt.Printf("scan %d: %v\n", n, scan)
			led.Toggle()
		}
	})
	if err := fw.Init(); err != nil {
		return nil, err
	}
	return func() error {
		fw.Stop()
		log.Printf("sampler: %d scans, %d overruns", fw.Scans(), fw.Overruns())
		return nil
	}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// toggler drives a GPIO pin standing in for the board LED. The zero
// value does nothing.
type toggler struct {
	mu  sync.Mutex
	pin gpio.PinIO
	on  bool
}

func openLED(name string) (*toggler, error) {
	if name == "" {
		return new(toggler), nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("led: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("led: no pin %s", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("led: %w", err)
	}
	return &toggler{pin: p}, nil
}

func (t *toggler) Toggle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pin == nil {
		return
	}
	t.on = !t.on
	if err := t.pin.Out(gpio.Level(t.on)); err != nil {
		log.Printf("led: %v", err)
	}
}

func writeTrace(name string, events []trace.Event) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := trace.Encode(f, events); err != nil {
		return err
	}
	log.Printf("%d events written to %s", len(events), name)
	return f.Close()
}

func dumpTrace(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	events, err := trace.Decode(f)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Fprintln(w, e)
	}
	return nil
}
