package contextbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(r *Registry, id string, c Category, p Priority, tokens int) Item {
	return r.Insert(Item{ID: ItemID(id), Content: text(tokens), Category: c, Priority: p, TokenCount: tokens})
}

func TestRegistryInsertAssignsSequence(t *testing.T) {
	r := NewRegistry()
	a := insert(r, "a", CategoryCode, PriorityLow, 5)
	b := insert(r, "b", CategoryUser, PriorityHigh, 7)

	assert.Equal(t, uint64(1), a.InsertedAt)
	assert.Equal(t, uint64(2), b.InsertedAt)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 12, r.TotalTokens())
	assert.Equal(t, 5, r.TokensByCategory(CategoryCode))
	assert.Equal(t, 7, r.TokensByPriority(PriorityHigh))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	insert(r, "a", CategoryCode, PriorityLow, 5)

	item, ok := r.Remove("a")
	require.True(t, ok)
	assert.Equal(t, ItemID("a"), item.ID)

	_, ok = r.Remove("a")
	assert.False(t, ok, "second remove reports not found")
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.CountByCategory(CategoryCode))
	assert.Equal(t, 0, r.CountByPriority(PriorityLow))
	assert.Equal(t, 0, r.TotalTokens())
}

func TestRegistryPartitionsAreDisjoint(t *testing.T) {
	r := NewRegistry()
	insert(r, "s", CategorySystem, PriorityCritical, 1)
	insert(r, "u", CategoryUser, PriorityHigh, 1)
	insert(r, "c1", CategoryCode, PriorityMedium, 1)
	insert(r, "c2", CategoryCode, PriorityLow, 1)
	insert(r, "m", CategoryMemory, PriorityLow, 1)

	total := 0
	for _, c := range Categories() {
		total += r.CountByCategory(c)
	}
	assert.Equal(t, r.Len(), total)
	assert.Equal(t, 2, r.CountByCategory(CategoryCode))
}

func TestRegistryPopOldestAcrossCategories(t *testing.T) {
	r := NewRegistry()
	insert(r, "first", CategoryMemory, PriorityLow, 1)
	insert(r, "second", CategoryCode, PriorityLow, 1)
	insert(r, "third", CategorySystem, PriorityLow, 1)

	// Removing from the middle of the heap keeps the order intact.
	_, ok := r.Remove("second")
	require.True(t, ok)

	got, ok := r.PopOldest(PriorityLow)
	require.True(t, ok)
	assert.Equal(t, ItemID("first"), got.ID)
	got, ok = r.PopOldest(PriorityLow)
	require.True(t, ok)
	assert.Equal(t, ItemID("third"), got.ID)
	_, ok = r.PopOldest(PriorityLow)
	assert.False(t, ok)
}

func TestRegistryEvictionOrder(t *testing.T) {
	r := NewRegistry()
	insert(r, "crit", CategoryCode, PriorityCritical, 1)
	insert(r, "med-old", CategoryCode, PriorityMedium, 1)
	insert(r, "low-old", CategoryCode, PriorityLow, 1)
	insert(r, "low-new", CategoryCode, PriorityLow, 1)
	insert(r, "other", CategoryUser, PriorityLow, 1)

	var ids []ItemID
	for _, it := range r.EvictionOrder(CategoryCode) {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []ItemID{"low-old", "low-new", "med-old", "crit"}, ids)
}

func TestRegistryIsolatesMetadata(t *testing.T) {
	r := NewRegistry()
	md := map[string]string{"path": "main.go"}
	r.Insert(Item{ID: "a", Category: CategoryCode, Priority: PriorityLow, Metadata: md})

	md["path"] = "changed.go"
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "main.go", got.Metadata["path"])

	got.Metadata["path"] = "mutated.go"
	again, _ := r.Get("a")
	assert.Equal(t, "main.go", again.Metadata["path"])
}

func TestRegistryClearKeepsSequenceMonotonic(t *testing.T) {
	r := NewRegistry()
	insert(r, "a", CategoryCode, PriorityLow, 1)
	r.Clear()
	b := insert(r, "b", CategoryCode, PriorityLow, 1)

	assert.Equal(t, uint64(2), b.InsertedAt)
	assert.Equal(t, 1, r.Len())
}
