// Package serial implements a driver for the STM32F4 USART with DMA
// transfers.
//
// USART2 receives through DMA1 stream 5 and transmits through DMA1
// stream 6, both on request channel 4.
package serial

import (
	"errors"
	"fmt"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/mmio"
	"github.com/yogk/f4/units"
)

// Registers is the USART register block.
type Registers struct {
	SR   mmio.Register32
	DR   mmio.Register32
	BRR  mmio.Register32
	CR1  mmio.Register32
	CR2  mmio.Register32
	CR3  mmio.Register32
	GTPR mmio.Register32
}

const (
	SR_PE   = 0b1 << 0
	SR_FE   = 0b1 << 1
	SR_NF   = 0b1 << 2
	SR_ORE  = 0b1 << 3
	SR_IDLE = 0b1 << 4
	SR_RXNE = 0b1 << 5
	SR_TC   = 0b1 << 6
	SR_TXE  = 0b1 << 7

	srErrors = SR_PE | SR_FE | SR_NF | SR_ORE

	CR1_RE     = 0b1 << 2
	CR1_TE     = 0b1 << 3
	CR1_RXNEIE = 0b1 << 5
	CR1_TCIE   = 0b1 << 6
	CR1_TXEIE  = 0b1 << 7
	CR1_PCE    = 0b1 << 10
	CR1_M      = 0b1 << 12
	CR1_UE     = 0b1 << 13
	CR1_OVER8  = 0b1 << 15

	CR2_STOP_Pos = 12
	CR2_STOP_Msk = 0b11

	CR3_DMAR = 0b1 << 6
	CR3_DMAT = 0b1 << 7
	CR3_RTSE = 0b1 << 8
	CR3_CTSE = 0b1 << 9
)

// DMA request channel of the USART2 streams.
const dmaRequest = 4

type (
	// RxChannel is the stream receiving into buffers.
	RxChannel = dma.Dma1Stream5
	// TxChannel is the stream transmitting from buffers.
	TxChannel = dma.Dma1Stream6

	RxBuffer = dma.Buffer[uint8, RxChannel]
	TxBuffer = dma.Buffer[uint8, TxChannel]
)

// Error is a receive error reported by the USART.
type Error int

const (
	// Framing means de-synchronization, excessive noise or a break
	// character.
	Framing Error = iota + 1
	// Noise was detected in the received frame.
	Noise
	// Overrun means a byte was received before the previous one was
	// read.
	Overrun
)

func (e Error) Error() string {
	switch e {
	case Framing:
		return "serial: framing error"
	case Noise:
		return "serial: noise error"
	case Overrun:
		return "serial: overrun"
	default:
		return fmt.Sprintf("serial: error %d", int(e))
	}
}

// ErrWouldBlock means the USART is not ready and the operation should be
// retried.
var ErrWouldBlock = errors.New("serial: would block")

// Event is an interrupt event of the USART.
type Event int

const (
	// RXNE fires when a byte was received.
	RXNE Event = iota
	// TC fires when transmission completed.
	TC
	// TXE fires when the transmit register is empty.
	TXE
)

// Serial is a USART.
type Serial struct {
	regs *Registers
}

func New(regs *Registers) *Serial {
	return &Serial{regs: regs}
}

// Registers returns the register block of s.
func (s *Serial) Registers() *Registers {
	return s.regs
}

// Configure sets up 8 data bits, no parity, 1 stop bit and no flow
// control at the given baud rate on bus. DMA requests are enabled when
// useDMA is set.
func (s *Serial) Configure(bus *units.Bus, baud units.Bps, useDMA bool) {
	r := s.regs
	r.CR2.Set(0b00 << CR2_STOP_Pos)
	r.BRR.Set(bus.BaudDivisor(baud))
	var cr3 uint32
	if useDMA {
		cr3 |= CR3_DMAT | CR3_DMAR
	}
	r.CR3.Set(cr3)
	r.CR1.Set(CR1_UE | CR1_RE | CR1_TE)
}

// ConfigureDMA sets up the receive and transmit streams of c. Both
// interrupt on transfer completion.
func (s *Serial) ConfigureDMA(c *dma.Controller) error {
	conf := dma.Config{
		Request:    dmaRequest,
		Priority:   dma.Medium,
		Interrupts: dma.TransferComplete | dma.TransferError,
	}
	if err := c.Configure(dma.ID[RxChannel](), conf); err != nil {
		return fmt.Errorf("serial: rx: %w", err)
	}
	if err := c.Configure(dma.ID[TxChannel](), conf); err != nil {
		return fmt.Errorf("serial: tx: %w", err)
	}
	return nil
}

// Listen enables the interrupt for e.
func (s *Serial) Listen(e Event) {
	s.regs.CR1.SetBits(eventBit(e))
}

// Unlisten disables the interrupt for e.
func (s *Serial) Unlisten(e Event) {
	s.regs.CR1.ClearBits(eventBit(e))
}

func eventBit(e Event) uint32 {
	switch e {
	case RXNE:
		return CR1_RXNEIE
	case TC:
		return CR1_TCIE
	case TXE:
		return CR1_TXEIE
	default:
		panic("serial: invalid event")
	}
}

// ReadByte returns the received byte, a receive Error or ErrWouldBlock.
// Reporting an error clears it and discards the byte.
func (s *Serial) ReadByte() (byte, error) {
	return readByte(s.regs)
}

func readByte(r *Registers) (byte, error) {
	sr := r.SR.Get()
	var err error
	switch {
	case sr&SR_ORE != 0:
		err = Overrun
	case sr&SR_NF != 0:
		err = Noise
	case sr&SR_FE != 0:
		err = Framing
	case sr&SR_RXNE != 0:
		return byte(readDR(r)), nil
	default:
		return 0, ErrWouldBlock
	}
	readDR(r)
	return 0, err
}

// WriteByte writes b to the transmit register or returns ErrWouldBlock
// if the previous byte is still waiting.
func (s *Serial) WriteByte(b byte) error {
	return writeByte(s.regs, b)
}

func writeByte(r *Registers, b byte) error {
	if !r.SR.HasBits(SR_TXE) {
		return ErrWouldBlock
	}
	writeDR(r, uint32(b))
	return nil
}

// TransmitComplete reports whether the last byte has left the shift
// register.
func (s *Serial) TransmitComplete() bool {
	return s.regs.SR.HasBits(SR_TC)
}

// ReadExact starts receiving len(buf) bytes into buf through DMA.
func (s *Serial) ReadExact(c *dma.Controller, buf *RxBuffer) (dma.Transfer[*RxBuffer], error) {
	return s.ReadN(c, buf, buf.Len())
}

// ReadN starts receiving n bytes into the beginning of buf.
func (s *Serial) ReadN(c *dma.Controller, buf *RxBuffer, n int) (dma.Transfer[*RxBuffer], error) {
	t, err := dma.StartWith(c, buf, n, s.regs.DR.Addr(), dma.PeripheralToMemory, buf)
	if err != nil {
		return t, fmt.Errorf("serial: read: %w", err)
	}
	return t, nil
}

// WriteAll starts transmitting the contents of buf through DMA.
func (s *Serial) WriteAll(c *dma.Controller, buf *TxBuffer) (dma.Transfer[*TxBuffer], error) {
	return s.WriteN(c, buf, buf.Len())
}

// WriteN starts transmitting the first n bytes of buf.
func (s *Serial) WriteN(c *dma.Controller, buf *TxBuffer, n int) (dma.Transfer[*TxBuffer], error) {
	t, err := dma.StartWith(c, buf, n, s.regs.DR.Addr(), dma.MemoryToPeripheral, buf)
	if err != nil {
		return t, fmt.Errorf("serial: write: %w", err)
	}
	return t, nil
}

// Split divides s into its transmitting and receiving halves.
func (s *Serial) Split() (*Tx, *Rx) {
	return &Tx{regs: s.regs}, &Rx{regs: s.regs}
}

// Tx is the transmitting half of a USART.
type Tx struct {
	regs *Registers
}

// Rx is the receiving half of a USART.
type Rx struct {
	regs *Registers
}

// Sent is the payload of a transmit transfer.
type Sent struct {
	Tx  *Tx
	Buf *TxBuffer
}

// Received is the payload of a receive transfer.
type Received struct {
	Rx  *Rx
	Buf *RxBuffer
}

// WriteAll moves tx and buf into a transfer transmitting buf. Both are
// handed back by the transfer's Wait.
func (tx *Tx) WriteAll(c *dma.Controller, buf *TxBuffer) (dma.Transfer[Sent], error) {
	t, err := dma.StartWith(c, buf, buf.Len(), tx.regs.DR.Addr(), dma.MemoryToPeripheral, Sent{tx, buf})
	if err != nil {
		return t, fmt.Errorf("serial: write: %w", err)
	}
	return t, nil
}

// ReadExact moves rx and buf into a transfer filling buf.
func (rx *Rx) ReadExact(c *dma.Controller, buf *RxBuffer) (dma.Transfer[Received], error) {
	t, err := dma.StartWith(c, buf, buf.Len(), rx.regs.DR.Addr(), dma.PeripheralToMemory, Received{rx, buf})
	if err != nil {
		return t, fmt.Errorf("serial: read: %w", err)
	}
	return t, nil
}

// WriteByte is like Serial.WriteByte.
func (tx *Tx) WriteByte(b byte) error {
	return writeByte(tx.regs, b)
}

// ReadByte is like Serial.ReadByte.
func (rx *Rx) ReadByte() (byte, error) {
	return readByte(rx.regs)
}
