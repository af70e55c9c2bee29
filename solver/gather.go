package solver

import (
	"fmt"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
)

// gather assembles every rank's owned band on the collector, in rank
// order, re-deriving each range from the partition formula. It is plain
// blocking point-to-point traffic, not a collective reduction; splitting
// and rejoining a grid this way is bit-for-bit lossless.
func (w *worker) gather() error {
	rank, size := w.ep.Rank(), w.ep.Size()

	if rank == Collector {
		for r := 1; r < size; r++ {
			lo, hi := ctc.RangeFor(r, size, w.g.Height())
			body, err := w.ep.Recv(r, tagGather)
			if err != nil {
				return err
			}
			cells, err := decodeCells(body)
			if err != nil {
				return err
			}
			if len(cells) != (hi-lo)*w.g.Width() {
				return fmt.Errorf("solver: band from rank %d has %d cells, want %d",
					r, len(cells), (hi-lo)*w.g.Width())
			}
			w.g.SetRows(lo, cells)
		}
		return nil
	}

	lo, hi := ctc.RangeFor(rank, size, w.g.Height())
	body, err := encodeCells(w.g.Rows(lo, hi))
	if err != nil {
		return err
	}
	return w.ep.Send(Collector, tagGather, body)
}
