package solver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/solver"
)

// testGrid builds a deterministic non-uniform grid with a well-formed
// zero-conduction margin.
func testGrid(t *testing.T, width, height int) *ctc.Grid {
	t.Helper()
	g, err := ctc.NewGrid(width, height)
	require.NoError(t, err)
	for i := 0; i < height; i++ {
		for j := 0; j < width; j++ {
			c := g.At(i, j)
			c.Heat = float32((i*7 + j*3) % 97)
			c.Temperature = 20
			if i > 0 && i < height-1 && j > 0 && j < width-1 {
				c.Conduction = 0.3 + 0.1*float32((i+j)%5)
			}
		}
	}
	return g
}

// uniformGrid builds a grid with one temperature everywhere and a given
// interior conduction.
func uniformGrid(t *testing.T, width, height int, heat, temp, cond float32) *ctc.Grid {
	t.Helper()
	g, err := ctc.NewGrid(width, height)
	require.NoError(t, err)
	g.Fill(ctc.Cell{Heat: heat, Temperature: temp})
	for i := 1; i < height-1; i++ {
		for j := 1; j < width-1; j++ {
			g.At(i, j).Conduction = cond
		}
	}
	return g
}

// forever makes the loop run to the iteration cap: the metric can never
// dip below a negative threshold.
const forever = float32(-1)

func TestUniformGridConvergesImmediately(t *testing.T) {
	// The 4x4 scenario: conduction 0.5, heat 0, temperature 10, no
	// noise. Every neighbor average is 10, so every delta is 0 and the
	// run ends after a single iteration with temperatures untouched.
	for _, workers := range []int{1, 2} {
		in := uniformGrid(t, 4, 4, 0, 10, 0.5)
		opts := solver.Options{Noise: 0, Threshold: solver.DefaultThreshold, MaxIterations: solver.DefaultMaxIterations}

		out, results, err := solver.RunLocal(in, workers, opts)
		require.NoError(t, err)

		res := results[solver.Collector]
		assert.Equal(t, 1, res.Iterations, "workers=%d", workers)
		assert.Zero(t, res.Metric, "workers=%d", workers)
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				assert.Equal(t, float32(10), out.Temperature(i, j), "workers=%d cell (%d,%d)", workers, i, j)
			}
		}
	}
}

func TestAlreadyUniformHeatTerminatesAfterOneIteration(t *testing.T) {
	// Temperature equal to heat everywhere: the first sweep measures a
	// zero delta and the loop stops at iteration 1.
	in := uniformGrid(t, 6, 6, 50, 50, 0.8)
	opts := solver.Options{Noise: 0, Threshold: solver.DefaultThreshold, MaxIterations: solver.DefaultMaxIterations}

	_, results, err := solver.RunLocal(in, 2, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, results[solver.Collector].Iterations)
	assert.Zero(t, results[solver.Collector].Metric)
}

func TestMaxIterZeroLeavesEverythingUntouched(t *testing.T) {
	// Zero sweeps: no halo traffic ever happens, the gather is a pure
	// split/rejoin, and the collector's grid must come back
	// bit-for-bit.
	for _, workers := range []int{1, 2, 3} {
		in := testGrid(t, 7, 9)
		opts := solver.Options{Noise: solver.DefaultNoise, Threshold: solver.DefaultThreshold, MaxIterations: 0}

		out, results, err := solver.RunLocal(in, workers, opts)
		require.NoError(t, err)

		res := results[solver.Collector]
		assert.Equal(t, 0, res.Iterations, "workers=%d", workers)
		assert.Equal(t, solver.DefaultThreshold+1, res.Metric, "workers=%d", workers)
		assert.Empty(t, res.History, "workers=%d", workers)
		assert.True(t, out.Equal(in), "workers=%d: gather round-trip altered the grid", workers)
	}
}

func TestSingleWorkerMatchesEmulatedProtocol(t *testing.T) {
	// With one worker the solve must equal a serial sweep followed by
	// the wrap-around ghost refresh: the top owned row lands in the
	// bottom margin and the bottom owned row in the top margin, exactly
	// as the ring exchange sends them.
	const iters = 5
	in := testGrid(t, 8, 8)

	want := in.Clone()
	var sum float32
	for n := 0; n < iters; n++ {
		sum = want.Step(1, 7, solver.DefaultNoise)
		top := append([]ctc.Cell(nil), want.Rows(1, 2)...)
		bottom := append([]ctc.Cell(nil), want.Rows(6, 7)...)
		want.SetRows(7, top)
		want.SetRows(0, bottom)
	}
	wantMetric := sum / float32(8*8)

	opts := solver.Options{Noise: solver.DefaultNoise, Threshold: forever, MaxIterations: iters}
	out, results, err := solver.RunLocal(in, 1, opts)
	require.NoError(t, err)

	res := results[solver.Collector]
	assert.Equal(t, iters, res.Iterations)
	assert.Equal(t, wantMetric, res.Metric)
	assert.True(t, out.Equal(want))
}

func TestAllRanksSeeIdenticalRun(t *testing.T) {
	// The terminal condition is evaluated on the reduced metric, so
	// every rank must record the same iteration count and history.
	in := testGrid(t, 9, 11)
	opts := solver.Options{Noise: solver.DefaultNoise, Threshold: forever, MaxIterations: 4}

	_, results, err := solver.RunLocal(in, 3, opts)
	require.NoError(t, err)

	require.Len(t, results, 3)
	for r := 1; r < 3; r++ {
		assert.Equal(t, results[0].Iterations, results[r].Iterations, "rank %d", r)
		assert.Equal(t, results[0].Metric, results[r].Metric, "rank %d", r)
		assert.Equal(t, results[0].History, results[r].History, "rank %d", r)
	}
	assert.Len(t, results[0].History, 4)
}

func TestMetricHistoryIsNonNegative(t *testing.T) {
	in := testGrid(t, 8, 10)
	opts := solver.Options{Noise: solver.DefaultNoise, Threshold: forever, MaxIterations: 6}

	_, results, err := solver.RunLocal(in, 2, opts)
	require.NoError(t, err)
	for i, m := range results[solver.Collector].History {
		assert.GreaterOrEqual(t, m, float32(0), "iteration %d", i+1)
	}
}

func TestFrameCallbackRunsOnCollector(t *testing.T) {
	in := testGrid(t, 8, 8)

	var frames []solver.State
	opts := solver.Options{
		Noise:         solver.DefaultNoise,
		Threshold:     forever,
		MaxIterations: 5,
		FrameEvery:    2,
		OnFrame: func(g *ctc.Grid, s solver.State) {
			require.Equal(t, 8, g.Width())
			require.Equal(t, 8, g.Height())
			frames = append(frames, s)
		},
	}

	_, _, err := solver.RunLocal(in, 2, opts)
	require.NoError(t, err)

	require.Len(t, frames, 2)
	assert.Equal(t, 2, frames[0].Iterations)
	assert.Equal(t, 4, frames[1].Iterations)
}

func TestRunRejectsConductingMargin(t *testing.T) {
	g, err := ctc.NewGrid(5, 5)
	require.NoError(t, err)
	g.Fill(ctc.Cell{Temperature: 1, Conduction: 0.5})

	_, _, err = solver.RunLocal(g, 1, solver.Options{MaxIterations: 1})
	assert.ErrorIs(t, err, ctc.ErrMargin)
}

func TestRunRejectsMoreWorkersThanRows(t *testing.T) {
	in := uniformGrid(t, 4, 4, 0, 10, 0.5) // two interior rows
	_, _, err := solver.RunLocal(in, 3, solver.Options{MaxIterations: 1})
	assert.Error(t, err)
}

func TestRunLocalRejectsZeroWorkers(t *testing.T) {
	in := uniformGrid(t, 4, 4, 0, 10, 0.5)
	_, _, err := solver.RunLocal(in, 0, solver.Options{MaxIterations: 1})
	assert.Error(t, err)
}
