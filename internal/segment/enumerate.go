package segment

import (
	"errors"
	"fmt"
	"iter"
	"math/big"
)

// ErrInvalidConfiguration is returned when the maximum field width is below 1.
var ErrInvalidConfiguration = errors.New("segment: invalid configuration")

// Enumerator produces every valid segmentation of a packet for a fixed
// maximum field width. An Enumerator holds no per-packet state and may be
// shared between goroutines once OnBranch is set.
type Enumerator struct {
	width int

	// OnBranch, if set, is called once for every field the search attempts,
	// before descending into it. pos is the field start offset and length its
	// size in bytes.
	OnBranch func(pos, length int)
}

// New returns an Enumerator for fields of 1 to width bytes.
func New(width int) (*Enumerator, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: field width %d, must be at least 1", ErrInvalidConfiguration, width)
	}
	return &Enumerator{width: width}, nil
}

// Width returns the maximum field width in bytes.
func (e *Enumerator) Width() int {
	return e.width
}

// Enumerate is shorthand for New followed by All.
func Enumerate(p Packet, width int) (iter.Seq[Decoding], error) {
	e, err := New(width)
	if err != nil {
		return nil, err
	}
	return e.All(p), nil
}

// All returns the decodings of p. An empty packet yields a single Decoding
// with no fields. The sequence can be ranged over more than once; every pass
// restarts the search.
func (e *Enumerator) All(p Packet) iter.Seq[Decoding] {
	return func(yield func(Decoding) bool) {
		w := &walker{
			data:     p.data,
			width:    e.width,
			onBranch: e.OnBranch,
			yield:    yield,
		}
		w.walk(0)
	}
}

type walker struct {
	data     []byte
	width    int
	onBranch func(pos, length int)
	yield    func(Decoding) bool

	breaks []int
	fields []Field
}

// walk extends the current prefix with every field that may start at pos.
// It returns false once the consumer has stopped pulling.
func (w *walker) walk(pos int) bool {
	n := len(w.data)
	if pos == n {
		return w.yield(w.snapshot())
	}

	if pos > 0 {
		w.breaks = append(w.breaks, pos)
		defer func() { w.breaks = w.breaks[:len(w.breaks)-1] }()
	}

	for l := 1; l <= min(w.width, n-pos); l++ {
		if w.onBranch != nil {
			w.onBranch(pos, l)
		}
		w.fields = append(w.fields, Field(w.data[pos:pos+l:pos+l]))
		ok := w.walk(pos + l)
		w.fields = w.fields[:len(w.fields)-1]
		if !ok {
			return false
		}
	}
	return true
}

// snapshot copies the working stacks so the emitted Decoding stays valid
// after the search moves on. The fields of one Decoding share a private copy
// of the packet bytes.
func (w *walker) snapshot() Decoding {
	d := Decoding{
		Breaks: make([]int, len(w.breaks)),
		Fields: make([]Field, len(w.fields)),
	}
	copy(d.Breaks, w.breaks)

	buf := make([]byte, len(w.data))
	copy(buf, w.data)
	pos := 0
	for i, f := range w.fields {
		end := pos + len(f)
		d.Fields[i] = Field(buf[pos:end:end])
		pos = end
	}
	return d
}

// Count returns the number of valid segmentations of an n-byte packet with
// fields of at most w bytes:
//
//	C(0, w) = 1
//	C(n, w) = C(n-1, w) + ... + C(n-min(w, n), w)
//
// Count returns 0 for n < 0 or w < 1. Only the last w terms of the
// recurrence are kept.
func Count(n, w int) *big.Int {
	if n < 0 || w < 1 {
		return new(big.Int)
	}
	if n == 0 {
		return big.NewInt(1)
	}
	w = min(w, n)

	// ring[j%w] holds C(j, w) for the last w values of j.
	ring := make([]big.Int, w)
	ring[0].SetInt64(1)
	window := big.NewInt(1) // C(i-w) + ... + C(i-1)
	cur := new(big.Int)
	for i := 1; i <= n; i++ {
		slot := &ring[i%w] // C(i-w), or 0 while i < w
		cur.Set(window)
		window.Add(window, cur)
		window.Sub(window, slot)
		slot.Set(cur)
	}
	return cur
}
