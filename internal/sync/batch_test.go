package sync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stridesync/internal/activity"
)

func makeActivities(n int) []*activity.Activity {
	records := make([]*activity.Activity, n)
	for i := range records {
		records[i] = &activity.Activity{ID: fmt.Sprintf("act-%03d", i)}
	}
	return records
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		size      int
		wantSizes []int
	}{
		{"empty input", 0, 50, nil},
		{"fewer than one batch", 10, 50, []int{10}},
		{"exact single batch", 50, 50, []int{50}},
		{"uneven split", 120, 50, []int{50, 50, 20}},
		{"exact multiple", 100, 50, []int{50, 50}},
		{"size one", 3, 1, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := makeActivities(tt.count)
			batches := Chunk(records, tt.size)

			require.Len(t, batches, len(tt.wantSizes))

			flattened := []*activity.Activity{}
			for i, batch := range batches {
				assert.Len(t, batch, tt.wantSizes[i])
				flattened = append(flattened, batch...)
			}

			// Concatenating batches reproduces the input exactly
			assert.Equal(t, records, flattened)
		})
	}
}

func TestChunkNonPositiveSize(t *testing.T) {
	records := makeActivities(7)

	batches := Chunk(records, 0)
	require.Len(t, batches, 1)
	assert.Equal(t, records, batches[0])
}
