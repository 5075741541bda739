package analytics

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ehr/medrecord/internal/platform/outfile"
)

type ChartKind string

const (
	ChartLine ChartKind = "line"
	ChartBar  ChartKind = "bar"
)

// chartTop bounds the number of bars drawn for a frequency ranking.
const chartTop = 10

// Chart is a single-series chart over nominal labels.
type Chart struct {
	Kind   ChartKind
	Title  string
	XLabel string
	YLabel string
	Labels []string
	Values []float64
}

func barChart(title, xLabel, yLabel string, counts []Count) Chart {
	if len(counts) > chartTop {
		counts = counts[:chartTop]
	}
	c := Chart{Kind: ChartBar, Title: title, XLabel: xLabel, YLabel: yLabel}
	for _, n := range counts {
		c.Labels = append(c.Labels, n.Key)
		c.Values = append(c.Values, float64(n.Count))
	}
	return c
}

// ChartRenderer turns a chart into an image artifact and returns its path.
// An empty path with a nil error means nothing was rendered.
type ChartRenderer interface {
	Render(ctx context.Context, name string, c Chart) (string, error)
}

// PlotRenderer writes PNG charts to a directory.
type PlotRenderer struct {
	dir    string
	width  vg.Length
	height vg.Length
	now    func() time.Time
}

func NewPlotRenderer(dir string) *PlotRenderer {
	return &PlotRenderer{dir: dir, width: 12 * vg.Inch, height: 6 * vg.Inch, now: time.Now}
}

// Render saves c as <dir>/<name>_<timestamp>.png, suffixed _1, _2 and so on
// when that name is taken. Charts without values are skipped.
func (r *PlotRenderer) Render(ctx context.Context, name string, c Chart) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(c.Values) == 0 {
		return "", nil
	}
	if len(c.Labels) != len(c.Values) {
		return "", fmt.Errorf("chart %s: %d labels for %d values", name, len(c.Labels), len(c.Values))
	}

	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = c.XLabel
	p.Y.Label.Text = c.YLabel

	switch c.Kind {
	case ChartLine:
		pts := make(plotter.XYs, len(c.Values))
		for i, v := range c.Values {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("chart %s: %w", name, err)
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return "", fmt.Errorf("chart %s: %w", name, err)
		}
		p.Add(line, scatter)
	case ChartBar:
		bars, err := plotter.NewBarChart(plotter.Values(c.Values), vg.Points(20))
		if err != nil {
			return "", fmt.Errorf("chart %s: %w", name, err)
		}
		p.Add(bars)
	default:
		return "", fmt.Errorf("chart %s: unknown kind %q", name, c.Kind)
	}
	p.NominalX(c.Labels...)

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("chart dir: %w", err)
	}
	png, err := p.WriterTo(r.width, r.height, "png")
	if err != nil {
		return "", fmt.Errorf("draw chart %s: %w", name, err)
	}
	path, err := outfile.Write(filepath.Join(r.dir, name+"_"+r.now().Format("20060102_150405")), ".png", 0o644,
		func(w io.Writer) error {
			_, err := png.WriteTo(w)
			return err
		})
	if err != nil {
		return "", fmt.Errorf("save chart %s: %w", name, err)
	}
	return path, nil
}

// NopRenderer renders nothing.
type NopRenderer struct{}

func (NopRenderer) Render(context.Context, string, Chart) (string, error) {
	return "", nil
}
