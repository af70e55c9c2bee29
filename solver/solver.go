/*
Package solver drives the distributed heat relaxation: checkerboard
sweeps over per-rank row bands, a ring halo exchange of boundary rows, a
collective convergence reduction each iteration, and a final gather of
all bands onto the collector rank.

Every rank owns a private copy of the grid; ranks share nothing but
their endpoint. There is no timeout or recovery on the wire: a stalled
peer blocks its partners forever, and the operator is expected to detect
that externally.
*/
package solver

import (
	"fmt"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/comm"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
)

// Message tags. Halo and gather values follow the reference protocol.
const (
	tagHaloUp   = 123 // topmost owned row, sent up the ring
	tagHaloDown = 789 // bottommost owned row, sent down the ring
	tagGather   = 456 // owned bands, sent to the collector
	tagReduce   = 321 // local delta sums and the reduced result
)

// Collector is the rank that assembles the final grid.
const Collector = 0

// Reference run parameters, in units of the 8-bit channel resolution.
const (
	// DefaultNoise is the additive bias in the neighbor-average target.
	DefaultNoise = float32(6.4 / 256)
	// DefaultThreshold is the metric value at or below which the run is
	// considered converged.
	DefaultThreshold = float32(0.5 / 256)
	// DefaultMaxIterations caps the compute time on runs that never
	// reach the threshold.
	DefaultMaxIterations = 5000
)

// Options carries the run parameters.
type Options struct {
	Noise         float32
	Threshold     float32
	MaxIterations int

	// FrameEvery, when positive, gathers a snapshot onto the collector
	// every FrameEvery iterations and hands it to OnFrame there. The
	// snapshot gather is a collective: every rank takes part, so it
	// cannot skew the iteration lockstep.
	FrameEvery int
	OnFrame    func(g *ctc.Grid, s State)
}

// DefaultOptions returns the reference parameters.
func DefaultOptions() Options {
	return Options{
		Noise:         DefaultNoise,
		Threshold:     DefaultThreshold,
		MaxIterations: DefaultMaxIterations,
	}
}

// State is the controller's run state. It is threaded through the loop
// as a value and returned; nothing mutates it from elsewhere.
type State struct {
	Iterations int
	Metric     float32
}

// Result is the outcome of a run on one rank. History records the
// metric after each iteration; every rank sees identical values, so a
// converged and a capped run are told apart only by comparing
// Iterations against the cap.
type Result struct {
	State
	History []float32
}

type worker struct {
	ep   comm.Endpoint
	g    *ctc.Grid
	opts Options
}

// Run executes the solve on this rank. g is the rank's private copy of
// the full grid; on the collector it holds the assembled result when Run
// returns. All ranks of the group must call Run for it to terminate.
func Run(ep comm.Endpoint, g *ctc.Grid, opts Options) (Result, error) {
	if err := g.ValidateMargin(); err != nil {
		return Result{}, err
	}
	if interior := g.Height() - 2; ep.Size() > interior {
		return Result{}, fmt.Errorf("solver: %d workers for %d interior rows", ep.Size(), interior)
	}
	w := &worker{ep: ep, g: g, opts: opts}
	return w.run()
}

func (w *worker) run() (Result, error) {
	rank, size := w.ep.Rank(), w.ep.Size()
	lo, hi := ctc.RangeFor(rank, size, w.g.Height())
	norm := float32(w.g.Width() * w.g.Height())

	// The initial metric must exceed the threshold so the loop runs.
	res := Result{State: State{Metric: w.opts.Threshold + 1}}

	for res.Iterations < w.opts.MaxIterations && res.Metric > w.opts.Threshold {
		sum := w.g.Step(lo, hi, w.opts.Noise)

		// The reduction touches no grid data, so it may overlap the
		// outstanding halo transfers; the wait below is what must
		// precede the next sweep.
		halo := w.startHalo(lo, hi)
		global, err := w.reduce(sum)
		if err != nil {
			return res, err
		}
		if err := halo.wait(); err != nil {
			return res, err
		}

		res.Metric = global / norm
		res.Iterations++
		res.History = append(res.History, res.Metric)

		if w.opts.FrameEvery > 0 && res.Iterations%w.opts.FrameEvery == 0 {
			if err := w.gather(); err != nil {
				return res, err
			}
			if rank == Collector && w.opts.OnFrame != nil {
				w.opts.OnFrame(w.g, res.State)
			}
		}
	}

	if err := w.gather(); err != nil {
		return res, err
	}
	return res, nil
}
