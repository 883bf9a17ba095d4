// Package echo implements firmware that echoes characters received on
// USART2 through DMA and answers a "hi" command with a greeting.
//
// The receive handler runs at priority 1 and owns the command line. The
// transmit handler runs at priority 2 and shares the transmit buffer and
// DMA controller with it, so the receive handler claims those.
package echo

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/yogk/f4/claim"
	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/serial"
	"github.com/yogk/f4/dwt"
	"github.com/yogk/f4/units"
)

const (
	// MaxCmdLen is the longest command parsed.
	MaxCmdLen = 10
	// MaxTxLen is the longest message sent.
	MaxTxLen = 100
	// MaxRxLen is the receive size. Each byte is parsed as it arrives.
	MaxRxLen = 1

	BaudRate units.Bps = 115_200

	RxPriority claim.Priority = 1
	TxPriority claim.Priority = 2

	// echoTimeout bounds the wait for the transmit register.
	echoTimeout units.Milliseconds = 10
)

// App is the echo firmware.
type App struct {
	clock dwt.Counter
	// Peripherals and buffers for Init, before interrupts run.
	serial *serial.Serial
	ctrl   *dma.Controller
	rxBuf  *serial.RxBuffer
	txBuf  *serial.TxBuffer

	usart *claim.Resource[*serial.Serial]
	dma   *claim.Resource[*dma.Controller]
	rx    *claim.Resource[*serial.RxBuffer]
	tx    *claim.Resource[*serial.TxBuffer]
	cmd   *claim.Resource[[]byte]
	cnt   *claim.Resource[uint8]
	// Scratch of the receive handler.
	rxByte byte
	rxLost bool
	// dropped counts echoes and replies lost to a busy transmitter.
	dropped atomic.Uint32
}

// New returns the firmware for s transferring through c. clock times
// out waits for the transmitter.
func New(s *serial.Serial, c *dma.Controller, clock dwt.Counter) *App {
	rx := dma.NewBuffer[uint8, serial.RxChannel](make([]byte, MaxRxLen))
	tx := dma.NewBuffer[uint8, serial.TxChannel](make([]byte, MaxTxLen))
	return &App{
		clock:  clock,
		serial: s,
		ctrl:   c,
		rxBuf:  rx,
		txBuf:  tx,
		usart:  claim.NewResource("USART2", s, RxPriority),
		dma:    claim.NewResource("DMA1", c, RxPriority, TxPriority),
		rx:     claim.NewResource("RX_BUFFER", rx, RxPriority),
		tx:     claim.NewResource("TX_BUFFER", tx, RxPriority, TxPriority),
		cmd:    claim.NewResource("CMD_BUFFER", make([]byte, 0, MaxCmdLen), RxPriority),
		cnt:    claim.NewResource("CNT", uint8(1), RxPriority),
	}
}

// Init configures the USART, sends a welcome message and starts
// listening. Interrupts are not yet running, so resources are accessed
// without claims.
func (a *App) Init(bus *units.Bus) error {
	s, c := a.serial, a.ctrl
	s.Configure(bus, BaudRate, true)
	if err := s.ConfigureDMA(c); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	if err := c.SetInterrupt(dma.ID[serial.RxChannel](), RxPriority, a.rxDone); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	if err := c.SetInterrupt(dma.ID[serial.TxChannel](), TxPriority, a.txDone); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	buf, err := a.txBuf.LockMut()
	if err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	n := copy(buf, "Hello, world! 1\r\n")
	if _, err := s.WriteN(c, a.txBuf, n); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	if _, err := s.ReadExact(c, a.rxBuf); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	return nil
}

// Dropped returns the number of echoes and replies lost because the
// transmitter was busy.
func (a *App) Dropped() int {
	return int(a.dropped.Load())
}

// rxDone handles the completion of a one byte receive.
func (a *App) rxDone(t claim.Threshold) {
	claim.ClaimWith(a.rx, t, a, receive)
	if a.rxLost {
		return
	}
	if claim.ClaimValueWith(a.cmd, t, a.rxByte, parse) {
		a.greet(t)
	}
}

// Handlers run on interrupt stacks and must not allocate. They are
// top-level functions or literals that capture nothing, and take what
// they need as an argument.

type rxJob struct {
	s   *serial.Serial
	buf *serial.RxBuffer
}

func receive(rx **serial.RxBuffer, t claim.Threshold, a *App) {
	buf := *rx
	a.rxLost = claim.ClaimValueWith(a.dma, t, buf, release[serial.RxChannel])
	if !a.rxLost {
		v, _ := buf.Lock()
		a.rxByte = v.At(0)
	}
	claim.ClaimWith(a.usart, t, a, func(s **serial.Serial, t claim.Threshold, a *App) {
		if !a.rxLost && !a.echo(*s, a.rxByte) {
			a.dropped.Add(1)
		}
		// Get ready to receive again.
		claim.ClaimWith(a.dma, t, rxJob{*s, a.rxBuf}, listen)
	})
}

func listen(c **dma.Controller, _ claim.Threshold, j rxJob) {
	if _, err := j.s.ReadExact(*c, j.buf); err != nil {
		panic(err)
	}
}

// release ends the transfer of buf. A failed transfer is reset and
// reported as lost.
func release[C dma.Channel](c **dma.Controller, _ claim.Threshold, buf *dma.Buffer[uint8, C]) (lost bool) {
	err := buf.Release(*c)
	if errors.Is(err, dma.ErrTransfer) {
		lost = true
		err = buf.Reset(*c)
	}
	if err != nil {
		panic(err)
	}
	return lost
}

// parse adds b to the command line and reports whether it completed a
// greeting.
func parse(cmd *[]byte, _ claim.Threshold, b byte) bool {
	if b == '\r' {
		hello := isGreeting(*cmd)
		*cmd = (*cmd)[:0]
		return hello
	}
	if len(*cmd) == MaxCmdLen {
		// Drop overlong commands.
		*cmd = (*cmd)[:0]
		return false
	}
	*cmd = append(*cmd, b)
	return false
}

func isGreeting(cmd []byte) bool {
	return len(cmd) == 2 && (cmd[0] == 'h' || cmd[0] == 'H') && cmd[1] == 'i'
}

type txByte struct {
	s *serial.Serial
	b byte
}

func writeByte(x txByte) (struct{}, bool) {
	return struct{}{}, x.s.WriteByte(x.b) == nil
}

// echo writes b back, followed by a newline after a carriage return.
func (a *App) echo(s *serial.Serial, b byte) bool {
	timeout := units.AHB1.FromMilliseconds(echoTimeout)
	if _, err := dwt.TryUntilWith(a.clock, timeout, txByte{s, b}, writeByte); err != nil {
		return false
	}
	if b == '\r' {
		_, err := dwt.TryUntilWith(a.clock, timeout, txByte{s, '\n'}, writeByte)
		return err == nil
	}
	return true
}

type greeting struct {
	a   *App
	cnt uint8
}

type txJob struct {
	a   *App
	c   *dma.Controller
	buf *serial.TxBuffer
	n   int
}

func (a *App) greet(t claim.Threshold) {
	cnt := claim.ClaimValue(a.cnt, t, func(cnt *uint8, _ claim.Threshold) uint8 {
		*cnt++
		return *cnt
	})
	claim.ClaimWith(a.tx, t, greeting{a, cnt}, send)
}

func send(tx **serial.TxBuffer, t claim.Threshold, g greeting) {
	buf, err := (*tx).LockMut()
	if err != nil {
		// Still sending the previous message.
		g.a.dropped.Add(1)
		return
	}
	msg := append(buf[:0], "Hello, there! "...)
	msg = strconv.AppendUint(msg, uint64(g.cnt), 10)
	msg = append(msg, "\r\n"...)
	claim.ClaimWith(g.a.dma, t, txJob{a: g.a, buf: *tx, n: len(msg)}, func(c **dma.Controller, t claim.Threshold, j txJob) {
		j.c = *c
		claim.ClaimWith(j.a.usart, t, j, write)
	})
}

func write(s **serial.Serial, _ claim.Threshold, j txJob) {
	if _, err := (*s).WriteN(j.c, j.buf, j.n); err != nil {
		panic(err)
	}
}

// txDone handles the completion of a transmission.
func (a *App) txDone(t claim.Threshold) {
	claim.ClaimWith(a.tx, t, a.dma, sent)
}

func sent(tx **serial.TxBuffer, t claim.Threshold, c *claim.Resource[*dma.Controller]) {
	claim.ClaimValueWith(c, t, *tx, release[serial.TxChannel])
	// Clear the buffer so old messages aren't resent.
	buf, _ := (*tx).LockMut()
	clear(buf)
}
