package segment

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, data []byte, width int) []Decoding {
	t.Helper()
	seq, err := Enumerate(NewPacket(data), width)
	require.NoError(t, err)
	return slices.Collect(seq)
}

// subsetBreaks enumerates every subset of [1, n-1] and keeps the ones whose
// gaps fit in [1, w]. It is the exponential baseline the walker replaces.
func subsetBreaks(n, w int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for mask := 0; mask < 1<<(n-1); mask++ {
		var breaks []int
		for i := 1; i < n; i++ {
			if mask&(1<<(i-1)) != 0 {
				breaks = append(breaks, i)
			}
		}
		prev, ok := 0, true
		for _, b := range append(slices.Clone(breaks), n) {
			if b-prev > w {
				ok = false
				break
			}
			prev = b
		}
		if ok {
			if breaks == nil {
				breaks = []int{}
			}
			out = append(out, breaks)
		}
	}
	return out
}

func sortedKeys(sets [][]int) []string {
	keys := make([]string, len(sets))
	for i, s := range sets {
		keys[i] = fmt.Sprint(s)
	}
	sort.Strings(keys)
	return keys
}

func TestEnumerate_ConcreteScenarios(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		width int
		want  [][]uint64
	}{
		{"single byte fields", []byte{10, 20}, 1, [][]uint64{{10, 20}}},
		{"two byte width", []byte{10, 20}, 2, [][]uint64{{10, 20}, {2580}}},
		{"three bytes width two", []byte{1, 2, 3}, 2, [][]uint64{{1, 2, 3}, {1, 515}, {258, 3}}},
		{"width above length", []byte{0xff}, 4, [][]uint64{{255}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][]uint64
			for _, d := range collect(t, tt.data, tt.width) {
				got = append(got, d.Uint64s())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decodings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnumerate_EmptyPacket(t *testing.T) {
	got := collect(t, nil, 3)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Fields)
	assert.Empty(t, got[0].Breaks)
	assert.Equal(t, "[]", got[0].String())
}

func TestEnumerate_InvalidWidth(t *testing.T) {
	for _, w := range []int{0, -1} {
		seq, err := Enumerate(NewPacket([]byte{1, 2, 3}), w)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration), "width %d: err = %v", w, err)
		assert.Nil(t, seq)
	}
}

func TestEnumerate_MatchesSubsetBaseline(t *testing.T) {
	for n := 0; n <= 10; n++ {
		for w := 1; w <= 4; w++ {
			data := make([]byte, n)
			for i := range data {
				data[i] = byte(i * 37)
			}
			got := collect(t, data, w)

			breaks := make([][]int, len(got))
			seen := make(map[string]bool, len(got))
			for i, d := range got {
				breaks[i] = d.Breaks
				key := d.Layout()
				require.False(t, seen[key], "n=%d w=%d duplicate layout %q", n, w, key)
				seen[key] = true
			}
			assert.Equal(t, sortedKeys(subsetBreaks(n, w)), sortedKeys(breaks), "n=%d w=%d", n, w)
			assert.Equal(t, 0, Count(n, w).Cmp(big.NewInt(int64(len(got)))), "n=%d w=%d count", n, w)
		}
	}
}

func TestEnumerate_SegmentBoundsAndCoverage(t *testing.T) {
	data := []byte{0xaa, 0x55, 0x0f, 0x07, 0x02, 0x41, 0x42, 0x43, 0x44}
	const w = 3
	for _, d := range collect(t, data, w) {
		prev, total := 0, 0
		for _, b := range append(slices.Clone(d.Breaks), len(data)) {
			l := b - prev
			assert.GreaterOrEqual(t, l, 1)
			assert.LessOrEqual(t, l, w)
			prev = b
		}
		for i, l := range d.Lengths() {
			assert.Equal(t, data[total:total+l], []byte(d.Fields[i]))
			total += l
		}
		assert.Equal(t, len(data), total)
		assert.GreaterOrEqual(t, len(d.Fields), (len(data)+w-1)/w)
		assert.LessOrEqual(t, len(d.Fields), len(data))
	}
}

func TestEnumerate_StopsAfterFirstResult(t *testing.T) {
	const n = 30
	e, err := New(2)
	require.NoError(t, err)

	attempts := 0
	e.OnBranch = func(pos, length int) { attempts++ }

	for d := range e.All(NewPacket(make([]byte, n))) {
		assert.Len(t, d.Fields, n)
		break
	}
	assert.LessOrEqual(t, attempts, n)
	assert.Positive(t, attempts)

	// The full result set is the 31st Fibonacci number.
	assert.Equal(t, "1346269", Count(n, 2).String())
}

func TestEnumerate_Restartable(t *testing.T) {
	seq, err := Enumerate(NewPacket([]byte{1, 2, 3, 4}), 2)
	require.NoError(t, err)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Len(t, first, 5)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second pass differs (-first +second):\n%s", diff)
	}
}

func TestEnumerate_DecodingsSurviveSearch(t *testing.T) {
	got := collect(t, []byte{1, 2, 3}, 3)
	want := []string{"[1 2 3]", "[1 515]", "[258 3]", "[66051]"}
	var strs []string
	for _, d := range got {
		strs = append(strs, d.String())
	}
	assert.Equal(t, want, strs)
}

func TestEnumerator_SharedAcrossGoroutines(t *testing.T) {
	e, err := New(3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data := make([]byte, n)
			for i := range data {
				data[i] = byte(n + i)
			}
			got := 0
			for d := range e.All(NewPacket(data)) {
				if len(d.Lengths()) == 0 && n > 0 {
					t.Errorf("n=%d: empty decoding", n)
				}
				got++
			}
			if want := Count(n, 3); want.Cmp(big.NewInt(int64(got))) != 0 {
				t.Errorf("n=%d: got %d decodings, want %s", n, got, want)
			}
		}(g + 8)
	}
	wg.Wait()
}

func TestDecoding_FieldsDoNotAliasPacket(t *testing.T) {
	p := NewPacket([]byte{1, 2, 3})
	seq, err := Enumerate(p, 2)
	require.NoError(t, err)
	all := slices.Collect(seq)
	require.Len(t, all, 3)

	all[0].Fields[0][0] = 9
	assert.Equal(t, "010203", p.String())
	assert.Equal(t, "[1 515]", all[1].String())
	assert.Equal(t, "[9 2 3]", all[0].String())
}

func TestPacket_Immutable(t *testing.T) {
	src := []byte{1, 2, 3}
	p := NewPacket(src)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, p.Bytes())

	b := p.Bytes()
	b[1] = 9
	assert.Equal(t, "010203", p.String())
	assert.Equal(t, 3, p.Len())
}

func TestField_Decode(t *testing.T) {
	assert.Equal(t, uint64(171), Field{0xab}.Uint64())
	assert.Equal(t, uint64(256), Field{0x01, 0x00}.Uint64())
	assert.Equal(t, "256", Field{0x01, 0x00}.String())

	wide := Field{0x01, 0, 0, 0, 0, 0, 0, 0, 0x02}
	assert.Equal(t, uint64(2), wide.Uint64())
	want := new(big.Int).Lsh(big.NewInt(1), 64)
	want.Add(want, big.NewInt(2))
	assert.Equal(t, 0, want.Cmp(wide.Big()))
	assert.Equal(t, "18446744073709551618", wide.String())
}

func TestCount(t *testing.T) {
	tests := []struct {
		n, w int
		want int64
	}{
		{0, 1, 1},
		{0, 5, 1},
		{3, 1, 1},
		{3, 2, 3},
		{4, 2, 5},
		{4, 3, 7},
		{5, 8, 16},
		{-1, 2, 0},
		{3, 0, 0},
	}
	for _, tt := range tests {
		got := Count(tt.n, tt.w)
		assert.Equal(t, tt.want, got.Int64(), "Count(%d, %d)", tt.n, tt.w)
	}
}

// countTable evaluates the recurrence with every intermediate term kept.
func countTable(n, w int) *big.Int {
	c := make([]*big.Int, n+1)
	c[0] = big.NewInt(1)
	for i := 1; i <= n; i++ {
		c[i] = new(big.Int)
		for l := 1; l <= min(w, i); l++ {
			c[i].Add(c[i], c[i-l])
		}
	}
	return c[n]
}

func TestCount_MatchesRecurrence(t *testing.T) {
	for n := 0; n <= 120; n++ {
		for _, w := range []int{1, 2, 3, 7, 200} {
			if got, want := Count(n, w), countTable(n, w); got.Cmp(want) != 0 {
				t.Fatalf("Count(%d, %d) = %s, want %s", n, w, got, want)
			}
		}
	}
}

func TestCount_BoundedAllocations(t *testing.T) {
	const n = 20000
	allocs := testing.AllocsPerRun(1, func() { Count(n, 2) })
	assert.Less(t, allocs, float64(n/4), "Count must not keep every term")
}
