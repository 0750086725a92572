package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

func TestPartition_GroupsAndOrders(t *testing.T) {
	batch := []domain.Transaction{
		{ID: 1, EntityID: "A", Timestamp: t0.Add(2 * time.Hour), Index: 0},
		{ID: 2, EntityID: "B", Timestamp: t0, Index: 1},
		{ID: 3, EntityID: "A", Timestamp: t0, Index: 2},
		{ID: 4, EntityID: "A", Timestamp: t0.Add(time.Hour), Index: 3},
	}

	parts, excluded := Partition(batch)

	assert.Equal(t, 0, excluded)
	require.Len(t, parts, 2)
	require.Len(t, parts["A"], 3)
	assert.Equal(t, int64(3), parts["A"][0].ID)
	assert.Equal(t, int64(4), parts["A"][1].ID)
	assert.Equal(t, int64(1), parts["A"][2].ID)
	assert.Equal(t, int64(2), parts["B"][0].ID)
}

func TestPartition_EqualTimestampsKeepInputOrder(t *testing.T) {
	batch := []domain.Transaction{
		{ID: 10, EntityID: "A", Timestamp: t0, Index: 5},
		{ID: 11, EntityID: "A", Timestamp: t0, Index: 2},
		{ID: 12, EntityID: "A", Timestamp: t0, Index: 9},
	}

	parts, _ := Partition(batch)

	require.Len(t, parts["A"], 3)
	assert.Equal(t, int64(11), parts["A"][0].ID)
	assert.Equal(t, int64(10), parts["A"][1].ID)
	assert.Equal(t, int64(12), parts["A"][2].ID)
}

func TestPartition_ExcludesZeroTimestamps(t *testing.T) {
	batch := []domain.Transaction{
		{ID: 1, EntityID: "A", Timestamp: t0},
		{ID: 2, EntityID: "A"}, // never parsed
		{ID: 3, EntityID: "B"},
	}

	parts, excluded := Partition(batch)

	assert.Equal(t, 2, excluded)
	assert.Len(t, parts["A"], 1)
	assert.NotContains(t, parts, "B")
}

func TestMedianAmount(t *testing.T) {
	assert.Equal(t, 0.0, MedianAmount(nil))

	odd := []domain.Transaction{{Amount: 30}, {Amount: 10}, {Amount: 20}}
	assert.Equal(t, 20.0, MedianAmount(odd))

	even := []domain.Transaction{{Amount: 40}, {Amount: 10}, {Amount: 20}, {Amount: 30}}
	assert.Equal(t, 25.0, MedianAmount(even))
}
