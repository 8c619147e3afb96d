package contextbuf

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// lenTokenizer charges one token per byte so tests can size items exactly.
var lenTokenizer = TokenizerFunc(func(_ context.Context, text, _ string) (int, error) {
	return len(text), nil
})

// text returns content that lenTokenizer prices at n tokens.
func text(n int) string {
	return strings.Repeat("a", n)
}

type recordingArchive struct {
	mu    sync.Mutex
	items []Item
	err   error
}

func (a *recordingArchive) Store(_ context.Context, item Item) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.items = append(a.items, item)
	return "archived/" + string(item.ID), nil
}

func (a *recordingArchive) stored() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Item, len(a.items))
	copy(out, a.items)
	return out
}

func sequentialIDs() func() ItemID {
	var mu sync.Mutex
	n := 0
	return func() ItemID {
		mu.Lock()
		defer mu.Unlock()
		n++
		return ItemID(fmt.Sprintf("item-%03d", n))
	}
}

func newTestBuffer(t *testing.T, maxTokens int, ratio float64, opts ...Option) *Buffer {
	t.Helper()
	opts = append([]Option{WithIDGenerator(sequentialIDs())}, opts...)
	b, err := New(Config{MaxTokens: maxTokens, BufferRatio: ratio, ModelID: "test-model"}, lenTokenizer, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func mustAdd(t *testing.T, b *Buffer, tokens int, c Category, p Priority) ItemID {
	t.Helper()
	id, err := b.Add(context.Background(), text(tokens), c, p)
	require.NoError(t, err)
	return id
}

func collect(b *Buffer, opts ...QueryOption) []Item {
	var out []Item
	for it := range b.Query(opts...) {
		out = append(out, it)
	}
	return out
}
