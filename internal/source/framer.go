package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/fieldscan/internal/monitoring"
	"github.com/banshee-data/fieldscan/internal/segment"
)

var ErrInvalidFraming = errors.New("source: invalid framing")

// Framing selects the part of each packet worth searching. Packets that do
// not start with Prefix, are shorter than MinLength, or are too short for the
// requested window are dropped.
type Framing struct {
	Prefix    []byte
	MinLength int
	// Offset and Length give the window [Offset, Offset+Length). Length 0
	// means to the end of the packet.
	Offset int
	Length int
}

// PulseOxFraming extracts the five pleth samples from a Wellue OxySmart
// notification: header aa 55 0f 07 02, at least 11 bytes, samples at 5..9.
var PulseOxFraming = Framing{
	Prefix:    []byte{0xaa, 0x55, 0x0f, 0x07, 0x02},
	MinLength: 11,
	Offset:    5,
	Length:    5,
}

// Validate reports negative offsets or lengths.
func (f Framing) Validate() error {
	if f.MinLength < 0 || f.Offset < 0 || f.Length < 0 {
		return fmt.Errorf("%w: min_length=%d offset=%d length=%d", ErrInvalidFraming, f.MinLength, f.Offset, f.Length)
	}
	return nil
}

// IsZero reports whether f keeps every packet unchanged.
func (f Framing) IsZero() bool {
	return len(f.Prefix) == 0 && f.MinLength == 0 && f.Offset == 0 && f.Length == 0
}

// Apply returns the framed window of p, or false if p is rejected.
func (f Framing) Apply(p segment.Packet) (segment.Packet, bool) {
	b := p.Bytes()
	if !bytes.HasPrefix(b, f.Prefix) || len(b) < f.MinLength || f.Offset > len(b) {
		return segment.Packet{}, false
	}
	end := len(b)
	if f.Length > 0 {
		end = f.Offset + f.Length
		if end > len(b) {
			return segment.Packet{}, false
		}
	}
	return segment.NewPacket(b[f.Offset:end]), true
}

// Framer applies a Framing to every packet of an underlying Source.
type Framer struct {
	src     Source
	framing Framing

	// Rejected counts packets dropped by the framing.
	Rejected int
}

// NewFramer wraps src.
func NewFramer(src Source, f Framing) (*Framer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Framer{src: src, framing: f}, nil
}

func (fr *Framer) Next(ctx context.Context) (segment.Packet, error) {
	for {
		p, err := fr.src.Next(ctx)
		if err != nil {
			return segment.Packet{}, err
		}
		if framed, ok := fr.framing.Apply(p); ok {
			return framed, nil
		}
		fr.Rejected++
		monitoring.Debugf("framer: rejected %d byte packet %s", p.Len(), p)
	}
}

func (fr *Framer) Close() error {
	return fr.src.Close()
}
