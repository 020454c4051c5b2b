package reinstall

// BatchState is derived from (batch_start, batch_size, total) on every
// request; it is never stored. The producing phase and the consuming client
// must recompute it identically, so all slicing in this package goes through
// Plan.
type BatchState struct {
	BatchStart     int  `json:"batch_start"`
	BatchSize      int  `json:"batch_size"`
	Total          int  `json:"total"`
	HasMore        bool `json:"has_more_batches"`
	NextBatchStart int  `json:"next_batch_start,omitempty"`
}

// Plan computes the batch state for a slice [start, start+size) of total
// items. A non-positive size processes everything remaining in one batch.
func Plan(start, size, total int) BatchState {
	if start < 0 {
		start = 0
	}
	end := total
	if size > 0 && start+size < total {
		end = start + size
	}

	bs := BatchState{
		BatchStart: start,
		BatchSize:  size,
		Total:      total,
	}
	if end < total {
		bs.HasMore = true
		bs.NextBatchStart = end
	}
	return bs
}

// End returns the exclusive end index of this batch's slice.
func (b BatchState) End() int {
	if b.HasMore {
		return b.NextBatchStart
	}
	return b.Total
}
