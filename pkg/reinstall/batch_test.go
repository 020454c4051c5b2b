package reinstall

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlan_SliceBounds(t *testing.T) {
	tests := []struct {
		name      string
		start     int
		size      int
		total     int
		wantEnd   int
		wantMore  bool
		wantNext  int
	}{
		{name: "first of many", start: 0, size: 5, total: 12, wantEnd: 5, wantMore: true, wantNext: 5},
		{name: "middle batch", start: 5, size: 5, total: 12, wantEnd: 10, wantMore: true, wantNext: 10},
		{name: "final short batch", start: 10, size: 5, total: 12, wantEnd: 12},
		{name: "exact fit", start: 5, size: 5, total: 10, wantEnd: 10},
		{name: "single batch covers all", start: 0, size: 20, total: 12, wantEnd: 12},
		{name: "zero size takes everything", start: 0, size: 0, total: 7, wantEnd: 7},
		{name: "empty total", start: 0, size: 5, total: 0, wantEnd: 0},
		{name: "negative start clamps", start: -3, size: 5, total: 12, wantEnd: 5, wantMore: true, wantNext: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := Plan(tt.start, tt.size, tt.total)
			require.Equal(t, tt.wantEnd, bs.End())
			require.Equal(t, tt.wantMore, bs.HasMore)
			if tt.wantMore {
				require.Equal(t, tt.wantNext, bs.NextBatchStart)
			}
		})
	}
}

// Following next_batch_start until has_more is false must cover [0, n)
// exactly once for every batch size.
func TestPlan_SequenceCoversEveryIndexOnce(t *testing.T) {
	for _, total := range []int{0, 1, 2, 5, 7, 23, 100} {
		for _, size := range []int{1, 2, 3, 5, 10, 99} {
			covered := make(map[int]int, total)

			start := 0
			for steps := 0; ; steps++ {
				require.Less(t, steps, total+2, "batch sequence did not terminate (total=%d size=%d)", total, size)

				bs := Plan(start, size, total)
				for i := start; i < bs.End(); i++ {
					covered[i]++
				}
				if !bs.HasMore {
					break
				}
				require.Greater(t, bs.NextBatchStart, start, "next_batch_start must advance")
				start = bs.NextBatchStart
			}

			require.Len(t, covered, total, "total=%d size=%d", total, size)
			for i := 0; i < total; i++ {
				require.Equal(t, 1, covered[i], "index %d (total=%d size=%d)", i, total, size)
			}
		}
	}
}
