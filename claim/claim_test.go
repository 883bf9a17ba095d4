package claim

import (
	"testing"
)

// recordingMask is a mask register that logs every value written.
type recordingMask struct {
	v      Priority
	writes []Priority
}

func (m *recordingMask) Get() Priority { return m.v }

func (m *recordingMask) Set(p Priority) {
	m.v = p
	m.writes = append(m.writes, p)
}

func TestCeiling(t *testing.T) {
	r := NewResource("counter", 0, 1, 3, 2)
	if got := r.Ceiling(); got != 3 {
		t.Errorf("ceiling %d, want 3", got)
	}
}

func TestClaimRaisesAndRestores(t *testing.T) {
	m := &recordingMask{}
	r := NewResource("counter", 0, 1, 3)
	th := NewThreshold(m, 1)
	Claim(r, th, func(v *int, inner Threshold) {
		if m.v != 3 {
			t.Errorf("mask %d inside claim, want 3", m.v)
		}
		if inner.Value() != 3 || inner.Task() != 1 {
			t.Errorf("inner threshold %d/%d", inner.Task(), inner.Value())
		}
		*v++
	})
	if m.v != 0 {
		t.Errorf("mask %d after claim, want 0", m.v)
	}
	if got := Load(r, th); got != 1 {
		t.Errorf("value %d", got)
	}
}

func TestClaimNesting(t *testing.T) {
	ceilings := []Priority{2, 3, 5, 7}
	for outer := range ceilings {
		for inner := range ceilings {
			m := &recordingMask{}
			c1, c2 := ceilings[outer], ceilings[inner]
			r1 := NewResource("r1", struct{}{}, 1, c1)
			r2 := NewResource("r2", struct{}{}, 1, c2)
			th := NewThreshold(m, 1)
			Claim(r1, th, func(_ *struct{}, t1 Threshold) {
				Claim(r2, t1, func(_ *struct{}, t2 Threshold) {
					want := max(c1, c2)
					if m.v != want {
						t.Errorf("ceilings %d,%d: mask %d in inner claim, want %d", c1, c2, m.v, want)
					}
					if t2.Value() != want {
						t.Errorf("ceilings %d,%d: threshold %d", c1, c2, t2.Value())
					}
				})
				if m.v != c1 {
					t.Errorf("ceilings %d,%d: mask %d after inner claim, want %d", c1, c2, m.v, c1)
				}
			})
			if m.v != 0 {
				t.Errorf("ceilings %d,%d: mask %d after claims", c1, c2, m.v)
			}
			// The mask only ever moves up inside the outer claim.
			for i := 1; i < len(m.writes)-1; i++ {
				if m.writes[i] < c1 {
					t.Errorf("ceilings %d,%d: mask lowered below the outer ceiling: %v", c1, c2, m.writes)
				}
			}
		}
	}
}

func TestClaimAtCeiling(t *testing.T) {
	m := &recordingMask{}
	r := NewResource("owned", 0, 2)
	Store(r, NewThreshold(m, 2), 5)
	if len(m.writes) != 0 {
		t.Errorf("claim at the ceiling wrote the mask: %v", m.writes)
	}
	if got := Load(r, NewThreshold(m, 2)); got != 5 {
		t.Errorf("got %d", got)
	}
}

func TestClaimRestoresOnPanic(t *testing.T) {
	m := &recordingMask{}
	r := NewResource("r", 0, 1, 4)
	func() {
		defer func() { recover() }()
		Claim(r, NewThreshold(m, 1), func(*int, Threshold) {
			panic("boom")
		})
	}()
	if m.v != 0 {
		t.Errorf("mask %d after panicking claim", m.v)
	}
}

func TestUndeclaredUser(t *testing.T) {
	r := NewResource("r", 0, 1, 2)
	defer func() {
		if recover() == nil {
			t.Error("claim from an undeclared priority succeeded")
		}
	}()
	Claim(r, NewThreshold(&recordingMask{}, 3), func(*int, Threshold) {})
}

func TestClaimValue(t *testing.T) {
	r := NewResource("buf", []byte("hi"), 1, 2)
	n := ClaimValue(r, NewThreshold(&recordingMask{}, 1), func(v *[]byte, _ Threshold) int {
		return len(*v)
	})
	if n != 2 {
		t.Errorf("got %d", n)
	}
}

func TestHardwarePriority(t *testing.T) {
	tests := []struct {
		p    Priority
		want uint8
	}{
		{1, 0xf0},
		{2, 0xe0},
		{15, 0x10},
	}
	for _, test := range tests {
		if got := HardwarePriority(test.p, 4); got != test.want {
			t.Errorf("HardwarePriority(%d) = %#x, want %#x", test.p, got, test.want)
		}
	}
	defer func() {
		if recover() == nil {
			t.Error("priority 16 accepted with 4 bits")
		}
	}()
	HardwarePriority(16, 4)
}

func TestClaimWith(t *testing.T) {
	m := &recordingMask{}
	r := NewResource("line", make([]byte, 0, 4), 1, 2)
	th := NewThreshold(m, 1)
	ClaimWith(r, th, byte('x'), func(v *[]byte, inner Threshold, b byte) {
		if m.v != 2 || inner.Value() != 2 {
			t.Errorf("mask %d, threshold %d inside claim", m.v, inner.Value())
		}
		*v = append(*v, b)
	})
	n := ClaimValueWith(r, th, 2, func(v *[]byte, _ Threshold, k int) int {
		return len(*v) * k
	})
	if n != 2 {
		t.Errorf("got %d", n)
	}
	if m.v != 0 {
		t.Errorf("mask %d after claims", m.v)
	}
}

func TestThresholdCopiesDontLeak(t *testing.T) {
	m := &recordingMask{}
	r := NewResource("r", 0, 1, 3)
	th := NewThreshold(m, 1)
	Claim(r, th, func(_ *int, inner Threshold) {})
	// The outer threshold is unchanged by the claim.
	if th.Value() != 1 {
		t.Errorf("threshold %d after claim", th.Value())
	}
}
