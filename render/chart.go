package render

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
)

// WriteChart plots the convergence metric against the iteration number
// as a PNG. It needs at least two recorded iterations to draw a line.
func WriteChart(w io.Writer, history []float32) error {
	if len(history) < 2 {
		return fmt.Errorf("render: need at least two iterations to chart, have %d", len(history))
	}

	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, m := range history {
		xs[i] = float64(i + 1)
		ys[i] = float64(m)
	}

	graph := chart.Chart{
		XAxis: chart.XAxis{Name: "Iteration"},
		YAxis: chart.YAxis{Name: "Mean temperature delta"},
		Series: []chart.Series{
			chart.ContinuousSeries{XValues: xs, YValues: ys},
		},
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render: drawing convergence chart: %w", err)
	}
	return nil
}
