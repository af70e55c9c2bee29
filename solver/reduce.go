package solver

// reduce is the once-per-iteration collective: every rank contributes
// its local delta sum and every rank returns with the identical global
// sum. The collector adds contributions in ascending rank order, so the
// float summation order is fixed and all ranks terminate on the same
// metric. Because no rank returns before every rank has contributed,
// the reduction doubles as the iteration barrier.
func (w *worker) reduce(local float32) (float32, error) {
	rank, size := w.ep.Rank(), w.ep.Size()

	if rank == Collector {
		global := local
		for r := 1; r < size; r++ {
			body, err := w.ep.Recv(r, tagReduce)
			if err != nil {
				return 0, err
			}
			v, err := decodeFloat(body)
			if err != nil {
				return 0, err
			}
			global += v
		}
		for r := 1; r < size; r++ {
			if err := w.ep.Send(r, tagReduce, encodeFloat(global)); err != nil {
				return 0, err
			}
		}
		return global, nil
	}

	if err := w.ep.Send(Collector, tagReduce, encodeFloat(local)); err != nil {
		return 0, err
	}
	body, err := w.ep.Recv(Collector, tagReduce)
	if err != nil {
		return 0, err
	}
	return decodeFloat(body)
}
