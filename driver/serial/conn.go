package serial

import (
	"fmt"

	"periph.io/x/conn/v3"

	"github.com/yogk/f4/dma"
)

// Conn is a periph.io connection over a DMA driven USART. Each Tx
// transmits through tx and then receives through rx, one buffer at a
// time.
type Conn struct {
	s  *Serial
	c  *dma.Controller
	tx *TxBuffer
	rx *RxBuffer
}

var (
	_ conn.Conn   = (*Conn)(nil)
	_ conn.Limits = (*Conn)(nil)
)

// NewConn returns a connection over s using the streams of c.
func NewConn(s *Serial, c *dma.Controller, tx *TxBuffer, rx *RxBuffer) *Conn {
	return &Conn{s: s, c: c, tx: tx, rx: rx}
}

func (c *Conn) String() string {
	return fmt.Sprintf("serial over DMA%d", c.c.Num())
}

func (c *Conn) Duplex() conn.Duplex {
	return conn.Full
}

// MaxTxSize returns the largest chunk moved by a single transfer.
func (c *Conn) MaxTxSize() int {
	return min(c.tx.Len(), c.rx.Len())
}

// Tx writes w and then fills r.
func (c *Conn) Tx(w, r []byte) error {
	for len(w) > 0 {
		buf, err := c.tx.LockMut()
		if err != nil {
			return fmt.Errorf("serial: %w", err)
		}
		n := copy(buf, w)
		w = w[n:]
		t, err := c.s.WriteN(c.c, c.tx, n)
		if err != nil {
			return err
		}
		if _, err := t.Wait(); err != nil {
			return fmt.Errorf("serial: write: %w", err)
		}
	}
	for len(r) > 0 {
		n := min(len(r), c.rx.Len())
		t, err := c.s.ReadN(c.c, c.rx, n)
		if err != nil {
			return err
		}
		if _, err := t.Wait(); err != nil {
			return fmt.Errorf("serial: read: %w", err)
		}
		v, err := c.rx.Lock()
		if err != nil {
			return fmt.Errorf("serial: %w", err)
		}
		v.CopyTo(r[:n])
		r = r[n:]
	}
	return nil
}
