package interpret

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fieldscan/internal/segment"
)

func values(t *testing.T, opts Options, data []byte, width int) [][]string {
	t.Helper()
	in, err := New(opts)
	require.NoError(t, err)
	seq, err := segment.Enumerate(segment.NewPacket(data), width)
	require.NoError(t, err)

	var out [][]string
	for d := range seq {
		out = append(out, Strings(in.Values(d)))
	}
	return out
}

func TestInterpreter_DefaultMatchesEnumerator(t *testing.T) {
	data := []byte{10, 20, 0xff}
	in, err := New(Options{})
	require.NoError(t, err)
	seq, err := segment.Enumerate(segment.NewPacket(data), 3)
	require.NoError(t, err)

	for d := range seq {
		vals := in.Values(d)
		for i, u := range d.Uint64s() {
			assert.Equal(t, u, vals[i].Uint64())
		}
	}
}

func TestInterpreter_LittleEndian(t *testing.T) {
	got := values(t, Options{Endian: LittleEndian}, []byte{0x00, 0x01}, 2)
	assert.Equal(t, [][]string{{"0", "1"}, {"256"}}, got)
}

func TestInterpreter_Signed(t *testing.T) {
	got := values(t, Options{Signed: true}, []byte{0xff, 0xfe}, 2)
	assert.Equal(t, [][]string{{"-1", "-2"}, {"-2"}}, got)

	got = values(t, Options{Signed: true, Endian: LittleEndian}, []byte{0xfe, 0x7f}, 2)
	assert.Equal(t, [][]string{{"-2", "127"}, {"32766"}}, got)
}

func TestInterpreter_MaskTopBit(t *testing.T) {
	// Pleth samples from a pulse oximeter frame; 0x8a carries the R-wave flag.
	got := values(t, Options{MaskTopBit: true}, []byte{0x8a, 0x40}, 1)
	assert.Equal(t, [][]string{{"10", "64"}}, got)

	got = values(t, Options{MaskTopBit: true}, []byte{0x80, 0x01}, 2)
	assert.Equal(t, [][]string{{"0", "1"}, {"1"}}, got)
}

func TestInterpreter_ExtraTransforms(t *testing.T) {
	double := func(v *big.Int, width int) *big.Int { return new(big.Int).Lsh(v, 1) }
	in, err := New(Options{MaskTopBit: true}, double)
	require.NoError(t, err)
	assert.Equal(t, "20", in.Field(segment.Field{0x8a}).String())
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(Options{Signed: true, MaskTopBit: true})
	assert.True(t, errors.Is(err, ErrConflictingOptions))

	_, err = New(Options{Endian: Endian(7)})
	assert.True(t, errors.Is(err, ErrUnknownEndian))
}

func TestParseEndian(t *testing.T) {
	for in, want := range map[string]Endian{"": BigEndian, "BE": BigEndian, "big": BigEndian, "le": LittleEndian, " Little ": LittleEndian} {
		got, err := ParseEndian(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseEndian("middle")
	assert.True(t, errors.Is(err, ErrUnknownEndian))
}

func TestFloat64s(t *testing.T) {
	assert.Equal(t, []float64{1, -2, 2580}, Float64s([]*big.Int{big.NewInt(1), big.NewInt(-2), big.NewInt(2580)}))
}
