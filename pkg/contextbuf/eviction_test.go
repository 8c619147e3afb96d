package contextbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []Item) []ItemID {
	out := make([]ItemID, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFreeSpaceNothingNeeded(t *testing.T) {
	r := NewRegistry()
	insert(r, "a", CategoryCode, PriorityLow, 10)

	res, err := NewEvictor(r).FreeSpace(0)
	require.NoError(t, err)
	assert.Empty(t, res.Evicted)
	assert.Equal(t, 1, r.Len())
}

func TestFreeSpaceOrder(t *testing.T) {
	tests := []struct {
		need int
		want []ItemID
	}{
		{1, []ItemID{"A"}},
		{10, []ItemID{"A"}},
		{11, []ItemID{"A", "B"}},
		{21, []ItemID{"A", "B", "C"}},
	}

	for _, tt := range tests {
		r := NewRegistry()
		insert(r, "A", CategoryCode, PriorityLow, 10)
		insert(r, "B", CategoryUser, PriorityLow, 10)
		insert(r, "C", CategoryMemory, PriorityMedium, 10)

		res, err := NewEvictor(r).FreeSpace(tt.need)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ids(res.Evicted), "need=%d", tt.need)
		assert.Equal(t, 10*len(tt.want), res.Freed)
	}
}

func TestFreeSpaceNeverEvictsCritical(t *testing.T) {
	r := NewRegistry()
	insert(r, "oldest-critical", CategorySystem, PriorityCritical, 50)
	insert(r, "high", CategoryUser, PriorityHigh, 20)

	res, err := NewEvictor(r).FreeSpace(20)
	require.NoError(t, err)
	assert.Equal(t, []ItemID{"high"}, ids(res.Evicted))

	_, ok := r.Get("oldest-critical")
	assert.True(t, ok)
}

func TestFreeSpaceInfeasibleLeavesRegistryUnchanged(t *testing.T) {
	r := NewRegistry()
	insert(r, "crit", CategorySystem, PriorityCritical, 50)
	insert(r, "low", CategoryCode, PriorityLow, 10)
	insert(r, "high", CategoryUser, PriorityHigh, 10)

	res, err := NewEvictor(r).FreeSpace(21)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.NotErrorIs(t, err, ErrSizeExceedsCapacity)

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 21, capErr.Need)
	assert.Equal(t, 20, capErr.Evictable)

	assert.Empty(t, res.Evicted)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 70, r.TotalTokens())
}

func TestFreeSpacePromotionSplit(t *testing.T) {
	r := NewRegistry()
	insert(r, "low", CategoryCode, PriorityLow, 5)
	insert(r, "medium", CategoryCode, PriorityMedium, 5)
	insert(r, "high", CategoryCode, PriorityHigh, 5)

	res, err := NewEvictor(r).FreeSpace(15)
	require.NoError(t, err)
	assert.Equal(t, []ItemID{"low"}, ids(res.Discarded))
	assert.Equal(t, []ItemID{"medium", "high"}, ids(res.Promoted))
	assert.Equal(t, []ItemID{"low", "medium", "high"}, ids(res.Evicted))
}

func TestFreeSpaceDoesNotSplitItems(t *testing.T) {
	r := NewRegistry()
	insert(r, "big", CategoryCode, PriorityLow, 50)

	res, err := NewEvictor(r).FreeSpace(10)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Freed)
}
