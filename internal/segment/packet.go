package segment

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
)

// Packet is an immutable byte sequence under analysis.
type Packet struct {
	data []byte
}

// NewPacket copies b into a new Packet. Later changes to b are not visible
// through the Packet.
func NewPacket(b []byte) Packet {
	data := make([]byte, len(b))
	copy(data, b)
	return Packet{data: data}
}

// Len returns the packet length in bytes.
func (p Packet) Len() int {
	return len(p.data)
}

// Bytes returns a copy of the packet contents.
func (p Packet) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// String returns the packet as lowercase hex.
func (p Packet) String() string {
	return hex.EncodeToString(p.data)
}

// Field is one contiguous run of packet bytes. The fields of a Decoding never
// alias the Packet they were cut from.
type Field []byte

// Uint64 decodes the field as an unsigned big-endian integer. Fields longer
// than 8 bytes keep only their low-order 8 bytes; use Big for those.
func (f Field) Uint64() uint64 {
	b := []byte(f)
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Big decodes the field as an unsigned big-endian integer of any width.
func (f Field) Big() *big.Int {
	return new(big.Int).SetBytes(f)
}

// String returns the decimal value of the field.
func (f Field) String() string {
	if len(f) <= 8 {
		return strconv.FormatUint(f.Uint64(), 10)
	}
	return f.Big().String()
}

// Decoding is one valid segmentation of a packet together with its decoded
// fields. Breaks holds the start offset of every field after the first, so a
// packet split into k+1 fields has k breaks.
type Decoding struct {
	Breaks []int
	Fields []Field
}

// Lengths returns the byte length of every field.
func (d Decoding) Lengths() []int {
	out := make([]int, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = len(f)
	}
	return out
}

// Uint64s returns the decoded value of every field. See Field.Uint64 for
// fields wider than 8 bytes.
func (d Decoding) Uint64s() []uint64 {
	out := make([]uint64, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Uint64()
	}
	return out
}

// Layout returns the break positions as a compact key such as "1,3,4".
// Decodings of equal-length packets share a layout when they cut the packet
// at the same offsets.
func (d Decoding) Layout() string {
	parts := make([]string, len(d.Breaks))
	for i, b := range d.Breaks {
		parts[i] = strconv.Itoa(b)
	}
	return strings.Join(parts, ",")
}

func (d Decoding) String() string {
	parts := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
