// Package trace records the events of simulated DMA streams for later
// inspection and comparison between runs.
package trace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2s"
)

// Kind is the kind of a stream event.
type Kind uint8

const (
	Start Kind = iota
	HalfTransfer
	Complete
	Error
	Disable
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case HalfTransfer:
		return "half"
	case Complete:
		return "complete"
	case Error:
		return "error"
	case Disable:
		return "disable"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is a single stream event.
type Event struct {
	_          struct{} `cbor:",toarray"`
	Seq        uint64
	Controller uint8
	Stream     uint8
	Kind       Kind
	// Remaining is the stream's element count when the event occurred.
	Remaining uint16
	// Digest is the blake2s-256 hash of the memory region the stream
	// transferred, recorded for completions.
	Digest []byte
}

func (e Event) String() string {
	s := fmt.Sprintf("#%d DMA%d stream %d: %v (%d left)", e.Seq, e.Controller, e.Stream, e.Kind, e.Remaining)
	if len(e.Digest) > 0 {
		s += fmt.Sprintf(" %x", e.Digest[:8])
	}
	return s
}

// Digest returns the digest of a transferred region.
func Digest(b []byte) []byte {
	d := blake2s.Sum256(b)
	return d[:]
}

// Recorder collects events. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	seq    uint64
	events []Event
}

// Record appends e, assigning it the next sequence number.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Seq = r.seq
	r.seq++
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Encode writes events to w as a sequence of CBOR items.
func Encode(w io.Writer, events []Event) error {
	enc := encMode.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("trace: %w", err)
		}
	}
	return nil
}

// Decode reads events written by Encode until the end of r. A trace
// ending inside an event fails with io.ErrUnexpectedEOF.
func Decode(r io.Reader) ([]Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	dec := decMode.NewDecoder(bytes.NewReader(data))
	var events []Event
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				if n := dec.NumBytesRead(); n != len(data) {
					return nil, fmt.Errorf("trace: event %d at byte %d: %w", len(events), n, io.ErrUnexpectedEOF)
				}
				return events, nil
			}
			return nil, fmt.Errorf("trace: %w", err)
		}
		events = append(events, e)
	}
}
