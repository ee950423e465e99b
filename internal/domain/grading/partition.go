package grading

// Partition splits items into contiguous batches, one per worker.
//
// With n items and w workers:
//   - n == 0 gives no batches;
//   - n < w gives n singleton batches;
//   - otherwise exactly w batches whose sizes differ by at most one, the
//     first n%w batches holding the extra item.
//
// Concatenating the batches yields items in the original order. The result
// only depends on len(items) and w.
func Partition[T any](items []T, workers int) ([][]T, error) {
	if workers < 1 {
		return nil, ErrInvalidWorkerCount.Withf("got %d", workers)
	}

	n := len(items)
	if n == 0 {
		return [][]T{}, nil
	}

	batches := workers
	if n < workers {
		batches = n
	}

	size, extra := n/batches, n%batches
	out := make([][]T, 0, batches)
	start := 0
	for i := 0; i < batches; i++ {
		end := start + size
		if i < extra {
			end++
		}
		batch := make([]T, end-start)
		copy(batch, items[start:end])
		out = append(out, batch)
		start = end
	}
	return out, nil
}
