package solver

import (
	"fmt"
	"sync"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/comm"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
)

// RunLocal runs size workers as goroutines over an in-process fabric,
// each on its own clone of g, preserving the disjoint-memory model of a
// multi-process run. It returns the collector's assembled grid and
// every rank's result, indexed by rank. OnFrame, if set, is invoked on
// the collector's goroutine.
func RunLocal(g *ctc.Grid, size int, opts Options) (*ctc.Grid, []Result, error) {
	if size < 1 {
		return nil, nil, fmt.Errorf("solver: need at least one worker, got %d", size)
	}

	ports := comm.NewFabric(size)
	var (
		wg      sync.WaitGroup
		out     *ctc.Grid
		results = make([]Result, size)
		errs    = make([]error, size)
	)
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			local := g.Clone()
			results[r], errs[r] = Run(ports[r], local, opts)
			if r == Collector {
				out = local
			}
		}(r)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, results, err
		}
	}
	return out, results, nil
}
