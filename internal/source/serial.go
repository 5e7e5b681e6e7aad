package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/fieldscan/internal/segment"
	"github.com/banshee-data/fieldscan/internal/serialmux"
)

// Serial decodes the lines published by a serial multiplexer. The caller owns
// the multiplexer and must run its Monitor loop; Serial only subscribes.
type Serial struct {
	mux      serialmux.SerialMuxInterface
	id       string
	lines    chan string
	encoding Encoding
	line     int
}

// NewSerial subscribes to mux.
func NewSerial(mux serialmux.SerialMuxInterface, enc Encoding) *Serial {
	id, ch := mux.Subscribe()
	return &Serial{mux: mux, id: id, lines: ch, encoding: enc}
}

// Next waits for the next non-blank line. It returns io.EOF once the
// multiplexer closes the subscription.
func (s *Serial) Next(ctx context.Context) (segment.Packet, error) {
	for {
		select {
		case <-ctx.Done():
			return segment.Packet{}, ctx.Err()
		case raw, ok := <-s.lines:
			if !ok {
				return segment.Packet{}, io.EOF
			}
			s.line++
			text := strings.TrimSpace(raw)
			if text == "" {
				continue
			}
			b, err := s.encoding.Decode(text)
			if err != nil {
				return segment.Packet{}, fmt.Errorf("%w: serial line %d: %v", ErrMalformedPacketSource, s.line, err)
			}
			return segment.NewPacket(b), nil
		}
	}
}

// Close unsubscribes from the multiplexer. It does not close the port.
func (s *Serial) Close() error {
	s.mux.Unsubscribe(s.id)
	return nil
}
