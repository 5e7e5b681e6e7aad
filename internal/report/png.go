package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	pngWidth     = 14 * vg.Inch
	pngRowHeight = 4 * vg.Inch
)

// renderPNG stacks one plot per layout vertically in a single image.
func renderPNG(w io.Writer, title string, layouts []*Layout) error {
	var rows [][]*plot.Plot
	for _, l := range layouts {
		p, err := layoutPlot(l)
		if err != nil {
			return err
		}
		rows = append(rows, []*plot.Plot{p})
	}
	if len(rows) == 0 {
		p := plot.New()
		p.Title.Text = title + " (no candidates)"
		rows = append(rows, []*plot.Plot{p})
	}

	img := vgimg.New(pngWidth, pngRowHeight*vg.Length(len(rows)))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(rows),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 4 * vg.Millimeter,
	}
	canvases := plot.Align(rows, tiles, dc)
	for i := range rows {
		rows[i][0].Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("render png report: %w", err)
	}
	return nil
}

func layoutPlot(l *Layout) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%d packets)", l.Name(), len(l.Packets))
	p.X.Label.Text = "packet"
	p.Y.Label.Text = "value"
	p.Legend.Top = true

	for i, s := range l.Stats() {
		pts := make(plotter.XYs, len(l.Packets))
		for j, idx := range l.Packets {
			pts[j] = plotter.XY{X: float64(idx), Y: l.Fields[i][j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line for %s field %d: %w", l.Name(), i, err)
		}
		line.Width = vg.Points(1)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(l.seriesName(i, s), line)
	}
	return p, nil
}
