// Package interpret turns the raw fields of a segment.Decoding into numbers
// under a configurable byte order and sign convention, with optional
// device-specific transforms applied afterwards.
//
// The zero Options value reproduces the enumerator's own decode: unsigned
// big-endian.
package interpret

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/banshee-data/fieldscan/internal/segment"
)

var (
	ErrUnknownEndian      = errors.New("interpret: unknown byte order")
	ErrConflictingOptions = errors.New("interpret: mask_top_bit and signed cannot be combined")
)

// Endian selects the byte order used to read a field.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

func (e Endian) String() string {
	switch e {
	case BigEndian:
		return "big"
	case LittleEndian:
		return "little"
	default:
		return fmt.Sprintf("Endian(%d)", int(e))
	}
}

// ParseEndian accepts "big", "be", "little" or "le" in any case. The empty
// string means big-endian.
func ParseEndian(s string) (Endian, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "big", "be":
		return BigEndian, nil
	case "little", "le":
		return LittleEndian, nil
	default:
		return BigEndian, fmt.Errorf("%w: %q", ErrUnknownEndian, s)
	}
}

// Options describes how field bytes become numbers.
type Options struct {
	Endian Endian
	// Signed reads each field as a two's complement integer of its own width.
	Signed bool
	// MaskTopBit clears the most significant bit of each field. The Wellue
	// pulse oximeter uses the top bit of each pleth sample as an R-wave flag.
	MaskTopBit bool
}

// Transform rewrites the value of a field of width bytes. Transforms must not
// modify v in place.
type Transform func(v *big.Int, width int) *big.Int

// Interpreter applies Options and any extra transforms to decoded fields.
type Interpreter struct {
	opts       Options
	transforms []Transform
}

// New validates opts and returns an Interpreter. Extra transforms run after
// the built-in ones, in order.
func New(opts Options, extra ...Transform) (*Interpreter, error) {
	if opts.Endian != BigEndian && opts.Endian != LittleEndian {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEndian, opts.Endian)
	}
	if opts.Signed && opts.MaskTopBit {
		return nil, ErrConflictingOptions
	}

	in := &Interpreter{opts: opts}
	if opts.MaskTopBit {
		in.transforms = append(in.transforms, MaskTopBit)
	}
	if opts.Signed {
		in.transforms = append(in.transforms, TwosComplement)
	}
	in.transforms = append(in.transforms, extra...)
	return in, nil
}

// Options returns the options the Interpreter was built with.
func (in *Interpreter) Options() Options {
	return in.opts
}

// Field returns the value of a single field.
func (in *Interpreter) Field(f segment.Field) *big.Int {
	b := []byte(f)
	if in.opts.Endian == LittleEndian {
		b = slices.Clone(b)
		slices.Reverse(b)
	}
	v := new(big.Int).SetBytes(b)
	for _, t := range in.transforms {
		v = t(v, len(f))
	}
	return v
}

// Values returns the value of every field of d.
func (in *Interpreter) Values(d segment.Decoding) []*big.Int {
	out := make([]*big.Int, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = in.Field(f)
	}
	return out
}

// MaskTopBit clears bit 8*width-1, so a one-byte value b > 127 becomes b-128.
func MaskTopBit(v *big.Int, width int) *big.Int {
	if width < 1 {
		return v
	}
	return new(big.Int).SetBit(v, 8*width-1, 0)
}

// TwosComplement reads v as a signed integer of width bytes.
func TwosComplement(v *big.Int, width int) *big.Int {
	if width < 1 {
		return v
	}
	bits := uint(8 * width)
	if v.Bit(int(bits-1)) == 0 {
		return v
	}
	return new(big.Int).Sub(v, new(big.Int).Lsh(big.NewInt(1), bits))
}

// Strings formats values in decimal.
func Strings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

// Float64s converts values for charting. Precision is lost above 2^53.
func Float64s(values []*big.Int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i], _ = new(big.Float).SetInt(v).Float64()
	}
	return out
}
