package recon

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/skyfront-data/shower.report/internal/gaussfit"
)

// OffsetPlotter writes one PNG per calibration fit: the time-difference
// histogram with the fitted Gaussian overlaid. Useful for judging whether a
// station's timing distribution is clean enough to trust the offset.
type OffsetPlotter struct {
	Dir string
}

// PlotFit renders the histogram for one detector or station pair. fitOK
// controls whether the fitted curve is drawn; a failed fit still produces the
// histogram so the bad distribution can be inspected.
func (op *OffsetPlotter) PlotFit(name string, centers, counts []float64, fitted gaussfit.Params, fitOK bool) error {
	if len(centers) == 0 {
		return fmt.Errorf("no bins to plot for %s", name)
	}
	if err := os.MkdirAll(op.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create plot dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "dt (ns)"
	p.Y.Label.Text = "count"
	p.X.Min = centers[0]
	p.X.Max = centers[len(centers)-1]

	pts := make(plotter.XYs, len(centers))
	for i := range centers {
		pts[i].X = centers[i]
		pts[i].Y = counts[i]
	}
	hist, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build histogram line: %w", err)
	}
	hist.Color = color.RGBA{R: 100, G: 100, B: 100, A: 255}
	p.Add(hist)
	p.Legend.Add("dt histogram", hist)

	if fitOK {
		curve := plotter.NewFunction(fitted.Gauss)
		curve.Color = color.RGBA{R: 220, G: 60, B: 40, A: 255}
		curve.Samples = 4 * len(centers)
		p.Add(curve)
		p.Legend.Add(fmt.Sprintf("gauss μ=%.2f σ=%.2f", fitted.Mean, fitted.Sigma), curve)
	}

	out := filepath.Join(op.Dir, name+".png")
	if err := p.Save(6*vg.Inch, 4*vg.Inch, out); err != nil {
		return fmt.Errorf("failed to save %s: %w", out, err)
	}
	return nil
}
