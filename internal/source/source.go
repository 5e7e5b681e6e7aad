// Package source supplies packets to the segmentation search. Every source
// turns some external representation (text lines, capture files, binary
// dumps, a serial stream) into discrete segment.Packet values, one per
// record.
package source

import (
	"context"
	"errors"
	"io"

	"github.com/banshee-data/fieldscan/internal/segment"
)

// ErrMalformedPacketSource is returned when a record cannot be decoded into
// bytes. The wrapped error names the record and the cause; the source remains
// usable and the next call to Next moves on to the following record.
var ErrMalformedPacketSource = errors.New("source: malformed packet source")

// Source yields packets one record at a time. Next returns io.EOF once the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (segment.Packet, error)
	Close() error
}

// Slice is an in-memory Source, mostly useful in tests and when embedding the
// search in another program.
type Slice struct {
	packets [][]byte
	pos     int
}

// FromPackets returns a Source that yields each of packets in order.
func FromPackets(packets ...[]byte) *Slice {
	return &Slice{packets: packets}
}

func (s *Slice) Next(ctx context.Context) (segment.Packet, error) {
	if err := ctx.Err(); err != nil {
		return segment.Packet{}, err
	}
	if s.pos >= len(s.packets) {
		return segment.Packet{}, io.EOF
	}
	p := segment.NewPacket(s.packets[s.pos])
	s.pos++
	return p, nil
}

func (s *Slice) Close() error { return nil }
