package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// renderHTML writes one line chart per layout on a single page.
func renderHTML(w io.Writer, title string, layouts []*Layout) error {
	page := components.NewPage()
	page.PageTitle = title

	for _, l := range layouts {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    l.Name(),
				Subtitle: fmt.Sprintf("%d packets, %d fields", len(l.Packets), len(l.Fields)),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "packet", NameLocation: "middle", NameGap: 25}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
		)
		line.SetXAxis(l.Packets)

		for i, s := range l.Stats() {
			data := make([]opts.LineData, len(l.Fields[i]))
			for j, v := range l.Fields[i] {
				data[j] = opts.LineData{Value: v}
			}
			line.AddSeries(l.seriesName(i, s), data)
		}
		page.AddCharts(line)
	}

	if len(layouts) == 0 {
		empty := charts.NewLine()
		empty.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "no candidates"}))
		page.AddCharts(empty)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
