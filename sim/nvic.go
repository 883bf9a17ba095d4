package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/yogk/f4/claim"
)

// IRQ is an interrupt line number.
type IRQ int

// NVIC models a nested vectored interrupt controller with a base
// priority mask. Interrupts are pended from any goroutine, but handlers
// only run on the goroutine that calls Service, Idle or lowers the mask,
// playing the part of the single core.
type NVIC struct {
	mu    sync.Mutex
	lines map[IRQ]*line
	mask  claim.Priority
	// active is the stack of priorities of running handlers.
	active []claim.Priority
	wake   chan struct{}
}

type line struct {
	prio    claim.Priority
	handler func(t claim.Threshold)
	enabled bool
	pending bool
}

var _ claim.Mask = (*NVIC)(nil)

func NewNVIC() *NVIC {
	return &NVIC{
		lines: make(map[IRQ]*line),
		wake:  make(chan struct{}, 1),
	}
}

// Register installs and enables the handler of irq at priority prio.
// Priority 0 is reserved for thread mode.
func (n *NVIC) Register(irq IRQ, prio claim.Priority, handler func(t claim.Threshold)) {
	if prio == 0 {
		panic(fmt.Sprintf("sim: IRQ %d at priority 0", irq))
	}
	n.mu.Lock()
	l := n.line(irq)
	l.prio = prio
	l.handler = handler
	l.enabled = true
	n.mu.Unlock()
}

// Unregister disables irq and removes its handler.
func (n *NVIC) Unregister(irq IRQ) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l := n.line(irq)
	l.enabled = false
	l.handler = nil
}

func (n *NVIC) line(irq IRQ) *line {
	l, ok := n.lines[irq]
	if !ok {
		l = new(line)
		n.lines[irq] = l
	}
	return l
}

// Pend marks irq pending. It is safe to call from any goroutine.
func (n *NVIC) Pend(irq IRQ) {
	n.mu.Lock()
	n.line(irq).pending = true
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether irq is pending.
func (n *NVIC) Pending(irq IRQ) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.line(irq).pending
}

// Get returns the base priority mask.
func (n *NVIC) Get() claim.Priority {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mask
}

// Set changes the base priority mask. Lowering the mask delivers the
// interrupts it was holding back before Set returns.
func (n *NVIC) Set(p claim.Priority) {
	n.mu.Lock()
	lowered := p < n.mask
	n.mask = p
	n.mu.Unlock()
	if lowered {
		n.Service()
	}
}

// Running returns the priority of the innermost running handler, or 0.
func (n *NVIC) Running() claim.Priority {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running()
}

func (n *NVIC) running() claim.Priority {
	if len(n.active) == 0 {
		return 0
	}
	return n.active[len(n.active)-1]
}

// next returns the most urgent pending interrupt that may preempt the
// current context.
func (n *NVIC) next() (IRQ, *line) {
	floor := max(n.mask, n.running())
	var (
		best IRQ
		bl   *line
	)
	for irq, l := range n.lines {
		if !l.pending || !l.enabled || l.prio <= floor {
			continue
		}
		if bl == nil || l.prio > bl.prio || l.prio == bl.prio && irq < best {
			best, bl = irq, l
		}
	}
	return best, bl
}

// Service runs the handlers of pending interrupts above the current mask
// and running priority, most urgent first, until none is left.
func (n *NVIC) Service() {
	for {
		n.mu.Lock()
		_, l := n.next()
		if l == nil {
			n.mu.Unlock()
			return
		}
		l.pending = false
		prio, h := l.prio, l.handler
		n.active = append(n.active, prio)
		n.mu.Unlock()

		n.run(prio, h)
	}
}

func (n *NVIC) run(prio claim.Priority, h func(t claim.Threshold)) {
	defer func() {
		n.mu.Lock()
		n.active = n.active[:len(n.active)-1]
		n.mu.Unlock()
	}()
	h(claim.NewThreshold(n, prio))
}

// Idle services interrupts until stop is closed, sleeping while none are
// pending.
func (n *NVIC) Idle(stop <-chan struct{}) {
	for {
		n.Service()
		select {
		case <-stop:
			return
		case <-n.wake:
		}
	}
}

// WaitForInterrupt blocks until an interrupt is pended or d elapses, and
// services pending interrupts. It reports whether it was woken.
func (n *NVIC) WaitForInterrupt(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-n.wake:
		n.Service()
		return true
	case <-t.C:
		return false
	}
}
