package sim

import (
	"slices"
	"testing"
	"time"

	"github.com/yogk/f4/claim"
	"github.com/yogk/f4/dma"
	"github.com/yogk/f4/dwt"
	"github.com/yogk/f4/mmio"
	"github.com/yogk/f4/trace"
	"github.com/yogk/f4/units"
)

func TestClaimDefersInterrupt(t *testing.T) {
	n := NewNVIC()
	var log []string
	counter := claim.NewResource("counter", 0, 1, 3)
	n.Register(2, 2, func(claim.Threshold) { log = append(log, "irq2") })
	n.Register(4, 4, func(claim.Threshold) { log = append(log, "irq4") })
	n.Register(1, 1, func(th claim.Threshold) {
		claim.Claim(counter, th, func(v *int, _ claim.Threshold) {
			log = append(log, "enter")
			if m := n.Get(); m != 3 {
				t.Errorf("mask %d inside claim, want 3", m)
			}
			n.Pend(2)
			n.Service()
			if !n.Pending(2) {
				t.Error("interrupt below the ceiling delivered inside the claim")
			}
			n.Pend(4)
			n.Service()
			*v++
			log = append(log, "exit")
		})
		log = append(log, "after")
	})
	n.Pend(1)
	n.Service()
	want := []string{"enter", "irq4", "exit", "irq2", "after"}
	if !slices.Equal(log, want) {
		t.Errorf("order %v, want %v", log, want)
	}
	if n.Get() != 0 || n.Running() != 0 {
		t.Errorf("mask %d, running %d after handlers", n.Get(), n.Running())
	}
}

func TestNoPreemptionAtEqualPriority(t *testing.T) {
	n := NewNVIC()
	var log []string
	n.Register(10, 2, func(claim.Threshold) {
		log = append(log, "a start")
		n.Pend(11)
		n.Service()
		log = append(log, "a end")
	})
	n.Register(11, 2, func(claim.Threshold) { log = append(log, "b") })
	n.Pend(10)
	n.Service()
	want := []string{"a start", "a end", "b"}
	if !slices.Equal(log, want) {
		t.Errorf("order %v, want %v", log, want)
	}
}

func TestMaskedInThreadMode(t *testing.T) {
	n := NewNVIC()
	ran := false
	n.Register(3, 2, func(th claim.Threshold) {
		if th.Task() != 2 {
			t.Errorf("handler threshold %d", th.Task())
		}
		ran = true
	})
	n.Set(2)
	n.Pend(3)
	n.Service()
	if ran {
		t.Fatal("interrupt delivered at the mask level")
	}
	n.Set(0)
	if !ran {
		t.Error("interrupt not delivered when the mask was lowered")
	}
}

func TestDisabledLine(t *testing.T) {
	n := NewNVIC()
	ran := false
	n.Register(5, 1, func(claim.Threshold) { ran = true })
	n.Unregister(5)
	n.Pend(5)
	n.Service()
	if ran {
		t.Error("disabled interrupt delivered")
	}
}

func TestIdle(t *testing.T) {
	n := NewNVIC()
	done := make(chan struct{})
	n.Register(1, 1, func(claim.Threshold) { close(done) })
	stop := make(chan struct{})
	go n.Idle(stop)
	n.Pend(1)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt not serviced while idle")
	}
	close(stop)
}

func TestTrace(t *testing.T) {
	b := NewBoard(nil)
	rec := new(trace.Recorder)
	b.Record(rec)
	dr := new(mmio.Register32)
	dev := &constant{v: 0xab}
	b.Engine(1).Attach(dr.Addr(), dev)
	buf := dma.NewBuffer[uint8, dma.Dma1Stream1](make([]uint8, 4))
	tr, err := dma.Start(b.DMA1, buf, dr.Addr(), dma.PeripheralToMemory)
	if err != nil {
		t.Fatal(err)
	}
	b.StepN(4)
	if _, err := tr.Wait(); err != nil {
		t.Fatal(err)
	}
	var kinds []trace.Kind
	var events []trace.Event
	for _, e := range rec.Events() {
		if e.Controller == 1 && e.Stream == 1 {
			kinds = append(kinds, e.Kind)
			events = append(events, e)
		}
	}
	if want := []trace.Kind{trace.Start, trace.HalfTransfer, trace.Complete}; !slices.Equal(kinds, want) {
		t.Fatalf("events %v, want %v", kinds, want)
	}
	last := events[len(events)-1]
	if want := trace.Digest([]byte{0xab, 0xab, 0xab, 0xab}); !slices.Equal(last.Digest, want) {
		t.Errorf("digest %x, want %x", last.Digest, want)
	}
	if last.Remaining != 0 {
		t.Errorf("%d remaining at completion", last.Remaining)
	}
}

func TestAbortTrace(t *testing.T) {
	b := NewBoard(nil)
	rec := new(trace.Recorder)
	b.Engine(1).Record(rec)
	dr := new(mmio.Register32)
	b.Engine(1).Attach(dr.Addr(), &constant{v: 1})
	buf := dma.NewBuffer[uint8, dma.Dma1Stream0](make([]uint8, 8))
	if _, err := dma.Start(b.DMA1, buf, dr.Addr(), dma.PeripheralToMemory); err != nil {
		t.Fatal(err)
	}
	b.StepN(2)
	b.DMA1.Abort(dma.ID[dma.Dma1Stream0]())
	b.Step()
	events := rec.Events()
	if len(events) != 2 || events[1].Kind != trace.Disable || events[1].Remaining != 6 {
		t.Errorf("events %v", events)
	}
}

func TestRunClose(t *testing.T) {
	b := NewBoard(nil)
	dr := new(mmio.Register32)
	b.Engine(1).Attach(dr.Addr(), &constant{v: 7})
	buf := dma.NewBuffer[uint32, dma.Dma1Stream4](make([]uint32, 16))
	tr, err := dma.Start(b.DMA1, buf, dr.Addr(), dma.PeripheralToMemory)
	if err != nil {
		t.Fatal(err)
	}
	b.Run(time.Microsecond)
	_, err = tr.Wait()
	b.Close()
	if err != nil {
		t.Fatal(err)
	}
	data, _ := buf.LockMut()
	for i, v := range data {
		if v != 7 {
			t.Fatalf("element %d is %d", i, v)
		}
	}
}

func TestClock(t *testing.T) {
	b := NewBoard(nil)
	if c := b.Cycles(); c != 0 {
		t.Fatalf("%d cycles before stepping", c)
	}
	b.StepN(10)
	if c, want := b.Cycles(), uint32(10*units.AHB1.Hertz()/1_000_000); c != want {
		t.Errorf("%d cycles after 10 steps, want %d", c, want)
	}
	b.Run(0)
	_, err := dwt.TryUntil(b, units.AHB1.FromMilliseconds(1), func() (struct{}, bool) {
		return struct{}{}, false
	})
	b.Close()
	if err != dwt.ErrTimeout {
		t.Errorf("TryUntil: %v, want timeout", err)
	}
	if c := b.Cycles(); c < uint32(units.AHB1.FromMilliseconds(1)) {
		t.Errorf("timed out after %d cycles", c)
	}
}

// constant is a peripheral that always has the same value.
type constant struct {
	v uint32
}

func (c *constant) Ready(dma.Direction) bool { return true }
func (c *constant) Load() uint32             { return c.v }
func (c *constant) Store(uint32)             {}
func (c *constant) Tick()                    {}
