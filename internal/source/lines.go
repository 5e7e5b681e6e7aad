package source

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/banshee-data/fieldscan/internal/segment"
)

// Encoding is the textual representation of one packet per line.
type Encoding int

const (
	// Escaped is the body of a Python bytes literal, as written by
	// repr(data): printable ASCII stands for itself and everything else is a
	// backslash escape such as \xaa or \n.
	Escaped Encoding = iota
	// Hex is pairs of hex digits, optionally separated by spaces, colons,
	// dashes or commas.
	Hex
)

func (e Encoding) String() string {
	switch e {
	case Escaped:
		return "escaped"
	case Hex:
		return "hex"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Decode converts one line into bytes.
func (e Encoding) Decode(line string) ([]byte, error) {
	switch e {
	case Hex:
		return DecodeHex(line)
	default:
		return DecodeEscaped(line)
	}
}

const maxLineBytes = 1 << 20

// Lines reads newline-delimited packets. Surrounding whitespace is trimmed and
// blank lines are skipped.
type Lines struct {
	scanner  *bufio.Scanner
	closer   io.Closer
	encoding Encoding
	line     int
}

// NewLines reads packets from r.
func NewLines(r io.Reader, enc Encoding) *Lines {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	l := &Lines{scanner: scanner, encoding: enc}
	if c, ok := r.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// OpenLines opens path and reads packets from it.
func OpenLines(path string, enc Encoding) (*Lines, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open packet file: %w", err)
	}
	return NewLines(f, enc), nil
}

func (l *Lines) Next(ctx context.Context) (segment.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return segment.Packet{}, err
		}
		if !l.scanner.Scan() {
			if err := l.scanner.Err(); err != nil {
				return segment.Packet{}, fmt.Errorf("read packet line %d: %w", l.line+1, err)
			}
			return segment.Packet{}, io.EOF
		}
		l.line++
		text := strings.TrimSpace(l.scanner.Text())
		if text == "" {
			continue
		}
		b, err := l.encoding.Decode(text)
		if err != nil {
			return segment.Packet{}, fmt.Errorf("%w: line %d: %v", ErrMalformedPacketSource, l.line, err)
		}
		return segment.NewPacket(b), nil
	}
}

// Line returns the number of the last line read.
func (l *Lines) Line() int { return l.line }

func (l *Lines) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// DecodeEscaped decodes the body of a Python bytes literal. Unknown escapes
// such as \q are kept verbatim, as Python does.
func DecodeEscaped(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 {
			return nil, fmt.Errorf("non-ASCII byte 0x%02x at offset %d", c, i)
		}
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if i+1 >= len(s) {
			return nil, fmt.Errorf("trailing backslash at offset %d", i)
		}
		i++
		switch e := s[i]; e {
		case '\\', '\'', '"':
			out = append(out, e)
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case 'x':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("truncated \\x escape at offset %d", i-1)
			}
			b, err := hex.DecodeString(s[i+1 : i+3])
			if err != nil {
				return nil, fmt.Errorf("invalid \\x escape %q at offset %d", s[i-1:i+3], i-1)
			}
			out = append(out, b[0])
			i += 2
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v, j := 0, i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				v = v*8 + int(s[j]-'0')
				j++
			}
			if v > 0o377 {
				return nil, fmt.Errorf("octal escape %q out of range at offset %d", s[i-1:j], i-1)
			}
			out = append(out, byte(v))
			i = j - 1
		default:
			out = append(out, '\\', e)
		}
	}
	return out, nil
}

// DecodeHex decodes hex digit pairs, ignoring separators and 0x prefixes.
func DecodeHex(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ':' || r == '-' || r == ','
	})
	var sb strings.Builder
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		sb.WriteString(f)
	}
	b, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
