package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupAdjacentEntries(t *testing.T) {
	t.Parallel()

	mk := func(ranges ...[2]uint64) []slot {
		out := make([]slot, len(ranges))
		for i, r := range ranges {
			out[i] = slot{index: i, entry: Entry{Offset: r[0], Size: r[1]}}
		}
		return out
	}
	spans := func(groups []rangeGroup) [][3]uint64 {
		var out [][3]uint64
		for _, g := range groups {
			out = append(out, [3]uint64{g.start, g.end, uint64(len(g.slots))})
		}
		return out
	}

	tests := []struct {
		name     string
		slots    []slot
		maxBytes uint64
		want     [][3]uint64
	}{
		{
			name: "empty",
		},
		{
			name:     "contiguous",
			slots:    mk([2]uint64{0, 10}, [2]uint64{10, 5}, [2]uint64{15, 5}),
			maxBytes: 100,
			want:     [][3]uint64{{0, 20, 3}},
		},
		{
			name:     "gap splits",
			slots:    mk([2]uint64{0, 10}, [2]uint64{20, 5}),
			maxBytes: 100,
			want:     [][3]uint64{{0, 10, 1}, {20, 25, 1}},
		},
		{
			name:     "byte cap splits",
			slots:    mk([2]uint64{0, 10}, [2]uint64{10, 10}, [2]uint64{20, 10}),
			maxBytes: 20,
			want:     [][3]uint64{{0, 20, 2}, {20, 30, 1}},
		},
		{
			name:     "oversized entry alone",
			slots:    mk([2]uint64{0, 50}, [2]uint64{50, 1}),
			maxBytes: 10,
			want:     [][3]uint64{{0, 50, 1}, {50, 51, 1}},
		},
		{
			name:     "shared range",
			slots:    mk([2]uint64{0, 10}, [2]uint64{0, 10}),
			maxBytes: 100,
			want:     [][3]uint64{{0, 10, 1}, {0, 10, 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, spans(groupAdjacentEntries(tt.slots, tt.maxBytes)))
		})
	}
}
