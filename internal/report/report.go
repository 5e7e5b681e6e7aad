// Package report charts how candidate decodings evolve across a stream of
// packets. A layout is a set of break offsets for packets of one length; a
// layout that decodes to smooth or slowly changing fields over many packets is
// a good guess at the real record structure.
package report

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fieldscan/internal/fsutil"
	"github.com/banshee-data/fieldscan/internal/interpret"
	"github.com/banshee-data/fieldscan/internal/monitoring"
	"github.com/banshee-data/fieldscan/internal/sink"
)

// ErrUnsupportedFormat is returned for output paths that are neither .html
// nor .png.
var ErrUnsupportedFormat = errors.New("report: unsupported output format")

const (
	// DefaultMaxLayouts is the number of layouts charted when Options leaves
	// MaxLayouts unset.
	DefaultMaxLayouts = 8
	// DefaultMaxTracked bounds the number of distinct layouts held in memory.
	DefaultMaxTracked = 4096
)

type Options struct {
	MaxLayouts int
	MaxTracked int
	Title      string
}

// FieldStats summarises one field of a layout over all its packets.
type FieldStats struct {
	Mean   float64
	StdDev float64
}

// Layout is every packet that produced a candidate with the same breaks.
type Layout struct {
	Length int
	Breaks string
	// Packets holds packet indices in arrival order.
	Packets []int
	// Fields holds one series per field, aligned with Packets.
	Fields [][]float64
	order  int
}

// Name returns a human-readable label such as "len 5 breaks 1,3".
func (l *Layout) Name() string {
	if l.Breaks == "" {
		return fmt.Sprintf("len %d whole", l.Length)
	}
	return fmt.Sprintf("len %d breaks %s", l.Length, l.Breaks)
}

// Stats returns the mean and sample standard deviation of every field.
func (l *Layout) Stats() []FieldStats {
	out := make([]FieldStats, len(l.Fields))
	for i, series := range l.Fields {
		if len(series) < 2 {
			out[i] = FieldStats{Mean: stat.Mean(series, nil)}
			continue
		}
		mean, std := stat.MeanStdDev(series, nil)
		out[i] = FieldStats{Mean: mean, StdDev: std}
	}
	return out
}

func (l *Layout) seriesName(i int, s FieldStats) string {
	return fmt.Sprintf("f%d (mean %.4g, sd %.4g)", i, s.Mean, s.StdDev)
}

// Builder collects candidates as a sink and renders a report on Close.
type Builder struct {
	fs      fsutil.FileSystem
	path    string
	opts    Options
	layouts map[string]*Layout
	// Skipped counts candidates that were not charted, either because the
	// layout limit was reached or because a value does not fit a float64.
	Skipped int
}

// NewBuilder returns a Builder writing to path on fs. The extension selects
// the format.
func NewBuilder(fs fsutil.FileSystem, path string, opts Options) (*Builder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".png":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
	if opts.MaxLayouts <= 0 {
		opts.MaxLayouts = DefaultMaxLayouts
	}
	if opts.MaxTracked <= 0 {
		opts.MaxTracked = DefaultMaxTracked
	}
	if opts.Title == "" {
		opts.Title = "fieldscan candidate layouts"
	}
	return &Builder{fs: fs, path: path, opts: opts, layouts: make(map[string]*Layout)}, nil
}

func (b *Builder) Begin(sink.PacketInfo) error { return nil }

func (b *Builder) Candidate(p sink.PacketInfo, c sink.Candidate) error {
	values := interpret.Float64s(c.Values)
	for _, v := range values {
		if math.IsInf(v, 0) {
			b.Skipped++
			return nil
		}
	}

	breaks := c.Decoding.Layout()
	key := fmt.Sprintf("%d/%s", p.Packet.Len(), breaks)
	l, ok := b.layouts[key]
	if !ok {
		if len(b.layouts) >= b.opts.MaxTracked {
			b.Skipped++
			return nil
		}
		l = &Layout{
			Length: p.Packet.Len(),
			Breaks: breaks,
			Fields: make([][]float64, len(values)),
			order:  len(b.layouts),
		}
		b.layouts[key] = l
	}
	l.Packets = append(l.Packets, p.Index)
	for i, v := range values {
		l.Fields[i] = append(l.Fields[i], v)
	}
	return nil
}

func (b *Builder) End(sink.PacketInfo, sink.Summary) error { return nil }

// Close renders the report.
func (b *Builder) Close() error {
	if b.Skipped > 0 {
		monitoring.Logf("report: %d candidates not charted", b.Skipped)
	}
	return b.Write()
}

// Layouts returns the tracked layouts ranked by the number of packets they
// cover, ties broken by first appearance.
func (b *Builder) Layouts() []*Layout {
	out := make([]*Layout, 0, len(b.layouts))
	for _, l := range b.layouts {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Packets) != len(out[j].Packets) {
			return len(out[i].Packets) > len(out[j].Packets)
		}
		return out[i].order < out[j].order
	})
	return out
}

// Top returns at most MaxLayouts layouts from Layouts.
func (b *Builder) Top() []*Layout {
	all := b.Layouts()
	if len(all) > b.opts.MaxLayouts {
		all = all[:b.opts.MaxLayouts]
	}
	return all
}

// Write renders the current layouts to the configured path.
func (b *Builder) Write() error {
	if dir := filepath.Dir(b.path); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := b.fs.Create(b.path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	layouts := b.Top()
	if strings.EqualFold(filepath.Ext(b.path), ".png") {
		err = renderPNG(f, b.opts.Title, layouts)
	} else {
		err = renderHTML(f, b.opts.Title, layouts)
	}
	return errors.Join(err, f.Close())
}
