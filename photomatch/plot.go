package photomatch

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// traceFloor keeps log10 finite for a zero error.
const traceFloor = 1e-16

// PlotTrace draws log10 of the best error per iteration. format is any
// format gonum/plot writes, such as "png" or "svg".
func PlotTrace(w io.Writer, trace []TracePoint, format string) error {
	if len(trace) == 0 {
		return fmt.Errorf("plot trace: no iterations recorded")
	}

	p := plot.New()
	p.Title.Text = "Camera solve convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "log10(error)"

	pts := make(plotter.XYs, len(trace))
	for i, tp := range trace {
		pts[i] = plotter.XY{X: float64(tp.Iteration), Y: math.Log10(math.Max(tp.Error, traceFloor))}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("plot trace: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return fmt.Errorf("plot trace: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("plot trace: %w", err)
	}
	return nil
}
