package tracker

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot renders data as a line plot against its indices and saves the
// plot to the image file filename. The image format is inferred from
// the filename extension.
func Plot(filename, title, xLabel, yLabel string, data []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	points := make(plotter.XYs, len(data))
	for i, value := range data {
		points[i].X = float64(i)
		points[i].Y = value
	}

	line, err := plotter.NewLine(points)
	if err != nil {
		return errors.Wrap(err, "plot: could not create line")
	}
	p.Add(line)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, filename); err != nil {
		return errors.Wrap(err, "plot: could not save plot")
	}
	return nil
}
