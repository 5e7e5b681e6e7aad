package report

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fieldscan/internal/fsutil"
	"github.com/banshee-data/fieldscan/internal/scan"
	"github.com/banshee-data/fieldscan/internal/segment"
	"github.com/banshee-data/fieldscan/internal/sink"
	"github.com/banshee-data/fieldscan/internal/source"
)

func runInto(t *testing.T, b *Builder, width int, packets ...[]byte) {
	t.Helper()
	e, err := segment.New(width)
	require.NoError(t, err)
	r := &scan.Runner{Source: source.FromPackets(packets...), Enumerator: e, Sink: b}
	_, err = r.Run(context.Background())
	require.NoError(t, err)
}

func TestBuilder_GroupsLayouts(t *testing.T) {
	b, err := NewBuilder(fsutil.NewMemoryFileSystem(), "out.html", Options{})
	require.NoError(t, err)
	runInto(t, b, 2,
		[]byte{1, 2},
		[]byte{3, 4},
		[]byte{9},
		[]byte{5, 6},
	)

	layouts := b.Layouts()
	require.Len(t, layouts, 3)

	assert.Equal(t, "len 2 breaks 1", layouts[0].Name())
	assert.Equal(t, []int{0, 1, 3}, layouts[0].Packets)
	assert.Equal(t, [][]float64{{1, 3, 5}, {2, 4, 6}}, layouts[0].Fields)

	assert.Equal(t, "len 2 whole", layouts[1].Name())
	assert.Equal(t, [][]float64{{258, 772, 1286}}, layouts[1].Fields)

	assert.Equal(t, "len 1 whole", layouts[2].Name())
	assert.Equal(t, []int{2}, layouts[2].Packets)

	stats := layouts[0].Stats()
	assert.InDelta(t, 3, stats[0].Mean, 1e-9)
	assert.InDelta(t, 2, stats[0].StdDev, 1e-9)
	assert.Equal(t, FieldStats{Mean: 9}, layouts[2].Stats()[0])
}

func TestBuilder_Limits(t *testing.T) {
	b, err := NewBuilder(fsutil.NewMemoryFileSystem(), "out.png", Options{MaxLayouts: 1, MaxTracked: 2})
	require.NoError(t, err)
	runInto(t, b, 3, []byte{1, 2, 3})

	assert.Len(t, b.Layouts(), 2)
	assert.Len(t, b.Top(), 1)
	assert.Equal(t, 2, b.Skipped)
}

func TestBuilder_SkipsValuesBeyondFloat64(t *testing.T) {
	b, err := NewBuilder(fsutil.NewMemoryFileSystem(), "out.html", Options{})
	require.NoError(t, err)

	huge := new(big.Int).Lsh(big.NewInt(1), 1100)
	p := sink.NewPacketInfo(0, segment.NewPacket([]byte{1}), 1)
	require.NoError(t, b.Candidate(p, sink.Candidate{Values: []*big.Int{huge}}))
	assert.Equal(t, 1, b.Skipped)
	assert.Empty(t, b.Layouts())
}

func TestBuilder_WritesHTML(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	b, err := NewBuilder(fs, "reports/out.html", Options{Title: "pulse ox"})
	require.NoError(t, err)
	runInto(t, b, 1, []byte{10, 20}, []byte{11, 21})
	require.NoError(t, b.Close())

	data, err := fs.ReadFile("reports/out.html")
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "pulse ox")
	assert.Contains(t, html, "len 2 breaks 1")
	assert.Contains(t, html, "f1 (mean 20.5, sd 0.7071)")

	info, err := fs.Stat("reports")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBuilder_WritesPNG(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	b, err := NewBuilder(fs, "out.png", Options{})
	require.NoError(t, err)
	runInto(t, b, 2, []byte{1, 2, 3}, []byte{2, 3, 4}, []byte{3, 4, 5})
	require.NoError(t, b.Close())

	data, err := fs.ReadFile("out.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
}

func TestBuilder_EmptyReport(t *testing.T) {
	for _, name := range []string{"empty.html", "empty.png"} {
		fs := fsutil.NewMemoryFileSystem()
		b, err := NewBuilder(fs, name, Options{})
		require.NoError(t, err)
		require.NoError(t, b.Close(), name)
		data, err := fs.ReadFile(name)
		require.NoError(t, err)
		assert.NotEmpty(t, data, name)
	}
}

func TestNewBuilder_UnsupportedFormat(t *testing.T) {
	_, err := NewBuilder(fsutil.NewMemoryFileSystem(), "out.svg", Options{})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
