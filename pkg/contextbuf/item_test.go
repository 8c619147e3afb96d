package contextbuf

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	for _, c := range Categories() {
		got, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCategory("  Code ")
	require.NoError(t, err)
	assert.Equal(t, CategoryCode, got)

	_, err = ParseCategory("notes")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestParsePriority(t *testing.T) {
	got, err := ParsePriority("CRITICAL")
	require.NoError(t, err)
	assert.Equal(t, PriorityCritical, got)

	_, err = ParsePriority("urgent")
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, PriorityCritical.AtLeast(PriorityHigh))
	assert.True(t, PriorityMedium.AtLeast(PriorityMedium))
	assert.False(t, PriorityLow.AtLeast(PriorityMedium))

	assert.True(t, PriorityHigh.Archivable())
	assert.True(t, PriorityMedium.Archivable())
	assert.False(t, PriorityLow.Archivable())
}

func TestInvalidEnumStrings(t *testing.T) {
	assert.Equal(t, "category(9)", Category(9).String())
	assert.Equal(t, "priority(-1)", Priority(-1).String())

	_, err := Category(9).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestItemJSONUsesNames(t *testing.T) {
	item := Item{ID: "i1", Content: "x", Category: CategoryMemory, Priority: PriorityHigh, TokenCount: 1}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"category":"memory"`)
	assert.Contains(t, string(data), `"priority":"high"`)

	var back Item
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, item, back)

	err = json.Unmarshal([]byte(`{"category":"bogus"}`), &back)
	assert.ErrorIs(t, err, ErrInvalidCategory)
}
