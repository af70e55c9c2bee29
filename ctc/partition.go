package ctc

// RangeFor maps a worker rank to its owned row range [lo, hi) over the
// updatable interior rows [1, height-1). Integer division can make
// neighboring partitions differ by one row; the union over all ranks
// covers the interior exactly, with no gaps or overlaps.
//
// Every call site re-derives its range from this formula. Nothing caches
// a copy, so the halo exchange and the final gather can never disagree
// about who owns which rows.
func RangeFor(rank, size, height int) (lo, hi int) {
	lo = 1 + rank*(height-2)/size
	hi = 1 + (rank+1)*(height-2)/size
	return lo, hi
}
