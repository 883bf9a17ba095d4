package sim

import (
	"sync"

	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/driver/serial"
)

// UART simulates a USART connected to a host that sends bytes to it and
// collects what it transmits.
type UART struct {
	regs *serial.Registers

	mu sync.Mutex
	// rdr and tdr are the receive and transmit data registers.
	rdr     uint32
	tdr     uint32
	tdrFull bool
	rx      []byte
	rxErr   []uint32
	tx      []byte
	onTx    func(b byte)
}

var (
	_ Device               = (*UART)(nil)
	_ serial.DataRegister = (*UART)(nil)
)

// NewUART returns a simulated USART operating regs.
func NewUART(regs *serial.Registers) *UART {
	u := &UART{regs: regs}
	regs.SR.Set(serial.SR_TXE | serial.SR_TC)
	serial.Simulate(regs, u)
	return u
}

// Receive queues bytes arriving on the RX line.
func (u *UART) Receive(b ...byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range b {
		u.rx = append(u.rx, c)
		u.rxErr = append(u.rxErr, 0)
	}
}

// ReceiveError queues a byte that arrives with the given error flags,
// such as serial.SR_FE.
func (u *UART) ReceiveError(b byte, flags uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rx = append(u.rx, b)
	u.rxErr = append(u.rxErr, flags)
}

// Transmitted returns the bytes sent so far.
func (u *UART) Transmitted() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.tx...)
}

// OnTransmit calls f with every transmitted byte, from the goroutine
// stepping the simulation.
func (u *UART) OnTransmit(f func(b byte)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onTx = f
}

func (u *UART) ReadDR() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.regs.SR.ClearBits(serial.SR_RXNE | serial.SR_PE | serial.SR_FE | serial.SR_NF | serial.SR_ORE)
	return u.rdr
}

func (u *UART) WriteDR(v uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tdr = v
	u.tdrFull = true
	u.regs.SR.ClearBits(serial.SR_TXE | serial.SR_TC)
}

func (u *UART) Ready(dir dma.Direction) bool {
	r := u.regs
	switch dir {
	case dma.PeripheralToMemory:
		return r.CR3.HasBits(serial.CR3_DMAR) && r.SR.HasBits(serial.SR_RXNE)
	case dma.MemoryToPeripheral:
		return r.CR3.HasBits(serial.CR3_DMAT) && r.SR.HasBits(serial.SR_TXE)
	}
	return false
}

func (u *UART) Load() uint32 {
	return u.ReadDR()
}

func (u *UART) Store(v uint32) {
	u.WriteDR(v)
}

// Tick shifts out a pending transmit byte and shifts in the next
// received byte once the previous one was read.
func (u *UART) Tick() {
	u.mu.Lock()
	defer u.mu.Unlock()
	r := u.regs
	cr1 := r.CR1.Get()
	if cr1&serial.CR1_UE == 0 {
		return
	}
	if cr1&serial.CR1_TE != 0 && u.tdrFull {
		b := byte(u.tdr)
		u.tdrFull = false
		u.tx = append(u.tx, b)
		r.SR.SetBits(serial.SR_TXE | serial.SR_TC)
		if u.onTx != nil {
			u.onTx(b)
		}
	}
	if cr1&serial.CR1_RE != 0 && len(u.rx) > 0 && !r.SR.HasBits(serial.SR_RXNE) {
		u.rdr = uint32(u.rx[0])
		flags := u.rxErr[0]
		u.rx, u.rxErr = u.rx[1:], u.rxErr[1:]
		r.SR.SetBits(serial.SR_RXNE | flags)
	}
}
