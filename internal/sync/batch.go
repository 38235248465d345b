package sync

import "github.com/strideworks/stridesync/internal/activity"

// DefaultBatchSize is the number of records per upload batch
const DefaultBatchSize = 50

// Chunk splits records into consecutive batches of at most size
// elements. Order is preserved; concatenating the result reproduces
// the input. A non-positive size yields a single batch.
func Chunk(records []*activity.Activity, size int) [][]*activity.Activity {
	if len(records) == 0 {
		return nil
	}

	if size <= 0 {
		return [][]*activity.Activity{records}
	}

	batches := make([][]*activity.Activity, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}

	return batches
}
