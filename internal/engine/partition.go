package engine

import (
	"sort"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// Partition groups a batch of transactions by entity and orders each
// entity's history by timestamp ascending, ties broken by original input
// index. Rows whose timestamp never parsed upstream (zero time) are excluded
// from every partition rather than aborting the batch; the count of excluded
// rows is returned so callers can surface it.
func Partition(batch []domain.Transaction) (map[string][]domain.Transaction, int) {
	partitions := make(map[string][]domain.Transaction)
	excluded := 0

	for _, t := range batch {
		if t.Timestamp.IsZero() {
			excluded++
			continue
		}
		partitions[t.EntityID] = append(partitions[t.EntityID], t)
	}

	for _, seq := range partitions {
		sort.Slice(seq, func(i, j int) bool {
			if !seq[i].Timestamp.Equal(seq[j].Timestamp) {
				return seq[i].Timestamp.Before(seq[j].Timestamp)
			}
			return seq[i].Index < seq[j].Index
		})
	}

	return partitions, excluded
}

// MedianAmount returns the median of the signed amounts across the whole
// batch, averaging the two middle values for even-sized batches. Zero for an
// empty batch.
func MedianAmount(batch []domain.Transaction) float64 {
	if len(batch) == 0 {
		return 0
	}
	amounts := make([]float64, len(batch))
	for i, t := range batch {
		amounts[i] = t.Amount
	}
	sort.Float64s(amounts)

	mid := len(amounts) / 2
	if len(amounts)%2 == 1 {
		return amounts[mid]
	}
	return (amounts[mid-1] + amounts[mid]) / 2
}
