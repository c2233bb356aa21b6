package validate

import (
	"errors"
	"math"

	"golang.org/x/xerrors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultVisualizationPath is where the pipeline writes the chart.
const DefaultVisualizationPath = "visualization.png"

var errNothingToPlot = errors.New("no features to plot")

// Visualize renders the share of non-missing values per feature as a bar
// chart. The image format follows the extension of path.
func Visualize(stats *Statistics, path string) error {
	if len(stats.Features) == 0 {
		return errNothingToPlot
	}

	names := make([]string, len(stats.Features))
	values := make(plotter.Values, len(stats.Features))
	for i, fs := range stats.Features {
		names[i] = fs.Name
		if fs.Count > 0 {
			values[i] = 100 * float64(fs.Present()) / float64(fs.Count)
		}
	}

	p := plot.New()
	p.Title.Text = "Dataset completeness"
	p.Y.Label.Text = "non-missing values (%)"
	p.Y.Min = 0
	p.Y.Max = 100

	bars, err := plotter.NewBarChart(values, vg.Points(16))
	if err != nil {
		return xerrors.Errorf("failed to build bar chart: %w", err)
	}
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4

	width := vg.Length(math.Max(4, 0.5*float64(len(names)))) * vg.Inch
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return xerrors.Errorf("failed to save visualization to %s: %w", path, err)
	}

	return nil
}
