/*
This file contains the halo exchange. After each sweep a rank refreshes
its two ghost rows from its ring neighbors: the row above its band comes
from rank-1, the row below from rank+1, modulo the worker count.

The wrap at the global top and bottom pairs the first and last ranks
even though the decomposition is a linear strip. The wrapped rows land
in the grid's margin, which ValidateMargin has pinned at zero
conduction, so they are never adopted by an update.
*/
package solver

import "fmt"

// haloOps tracks the four asynchronous operations of one exchange.
type haloOps struct {
	errs chan error
}

// startHalo posts the four operations without blocking: own top row up
// and own bottom row down, plus the matching receives into the ghost
// rows. The caller must wait() before the next sweep reads any ghost.
func (w *worker) startHalo(lo, hi int) *haloOps {
	rank, size := w.ep.Rank(), w.ep.Size()
	up := (rank + size - 1) % size
	down := (rank + 1) % size

	h := &haloOps{errs: make(chan error, 4)}
	go func() { h.errs <- w.sendRow(up, tagHaloUp, lo) }()
	go func() { h.errs <- w.recvRow(down, tagHaloUp, hi) }()
	go func() { h.errs <- w.sendRow(down, tagHaloDown, hi-1) }()
	go func() { h.errs <- w.recvRow(up, tagHaloDown, lo-1) }()
	return h
}

// wait blocks until all four operations have completed and reports the
// first failure.
func (h *haloOps) wait() error {
	var first error
	for i := 0; i < 4; i++ {
		if err := <-h.errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (w *worker) sendRow(dest, tag, row int) error {
	body, err := encodeCells(w.g.Rows(row, row+1))
	if err != nil {
		return err
	}
	return w.ep.Send(dest, tag, body)
}

func (w *worker) recvRow(src, tag, row int) error {
	body, err := w.ep.Recv(src, tag)
	if err != nil {
		return err
	}
	cells, err := decodeCells(body)
	if err != nil {
		return err
	}
	if len(cells) != w.g.Width() {
		return fmt.Errorf("solver: ghost row from rank %d has %d cells, want %d",
			src, len(cells), w.g.Width())
	}
	w.g.SetRows(row, cells)
	return nil
}
