package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cjeanneret/BeamGo/internal/logic/tracking"
)

// ErrEmptyTrace is returned when there is nothing to plot.
var ErrEmptyTrace = errors.New("report: empty trace")

// PlotTrace renders distance against time to a PNG (or any extension
// gonum/plot supports) at path.
func PlotTrace(path, title string, tr tracking.Trace) error {
	if tr.Len() == 0 {
		return ErrEmptyTrace
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Distance (px)"
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, tr.Len())
	for i := range pts {
		pts[i] = plotter.XY{X: tr.Elapsed[i], Y: tr.Distance[i]}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("trace line: %w", err)
	}
	line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("receiver ↔ spot", line)
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
