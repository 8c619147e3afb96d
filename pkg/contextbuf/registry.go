package contextbuf

import (
	"container/heap"
	"slices"
)

type entry struct {
	item  Item
	index int // position in its tier heap
}

// tierHeap is a min-heap of entries by InsertedAt, one per priority.
type tierHeap []*entry

func (h tierHeap) Len() int           { return len(h) }
func (h tierHeap) Less(i, j int) bool { return h[i].item.InsertedAt < h[j].item.InsertedAt }
func (h tierHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *tierHeap) Push(x any) {
	e, _ := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *tierHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Registry owns every stored item. Items are partitioned by category and
// indexed per priority tier for oldest-first eviction. Not safe for concurrent
// use; the Buffer lock guards it.
type Registry struct {
	items            map[ItemID]*entry
	byCategory       [numCategories]map[ItemID]*entry
	tiers            [numPriorities]tierHeap
	tokensByCategory [numCategories]int
	tokensByPriority [numPriorities]int
	seq              uint64
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.Clear()
	return r
}

// Insert stores a copy of item, stamping the next InsertedAt sequence number.
// The caller guarantees ID uniqueness and valid category and priority.
func (r *Registry) Insert(item Item) Item {
	r.seq++
	stored := item.clone()
	stored.InsertedAt = r.seq

	e := &entry{item: stored}
	r.items[stored.ID] = e
	r.byCategory[stored.Category][stored.ID] = e
	heap.Push(&r.tiers[stored.Priority], e)
	r.tokensByCategory[stored.Category] += stored.TokenCount
	r.tokensByPriority[stored.Priority] += stored.TokenCount

	return stored.clone()
}

func (r *Registry) Get(id ItemID) (Item, bool) {
	e, ok := r.items[id]
	if !ok {
		return Item{}, false
	}
	return e.item.clone(), true
}

// Remove deletes id. It reports false when id is not present.
func (r *Registry) Remove(id ItemID) (Item, bool) {
	e, ok := r.items[id]
	if !ok {
		return Item{}, false
	}
	heap.Remove(&r.tiers[e.item.Priority], e.index)
	r.detach(e)
	return e.item, true
}

// PopOldest removes and returns the oldest item of priority p.
func (r *Registry) PopOldest(p Priority) (Item, bool) {
	if r.tiers[p].Len() == 0 {
		return Item{}, false
	}
	e, _ := heap.Pop(&r.tiers[p]).(*entry)
	r.detach(e)
	return e.item, true
}

func (r *Registry) detach(e *entry) {
	delete(r.items, e.item.ID)
	delete(r.byCategory[e.item.Category], e.item.ID)
	r.tokensByCategory[e.item.Category] -= e.item.TokenCount
	r.tokensByPriority[e.item.Priority] -= e.item.TokenCount
}

func (r *Registry) Len() int {
	return len(r.items)
}

func (r *Registry) CountByCategory(c Category) int {
	return len(r.byCategory[c])
}

func (r *Registry) CountByPriority(p Priority) int {
	return r.tiers[p].Len()
}

func (r *Registry) TokensByCategory(c Category) int {
	return r.tokensByCategory[c]
}

func (r *Registry) TokensByPriority(p Priority) int {
	return r.tokensByPriority[p]
}

// TotalTokens is the sum of TokenCount over every stored item.
func (r *Registry) TotalTokens() int {
	total := 0
	for _, t := range r.tokensByPriority {
		total += t
	}
	return total
}

// TokensInTiers sums TokenCount over priorities from best to worst inclusive.
func (r *Registry) TokensInTiers(best, worst Priority) int {
	total := 0
	for p := best; p <= worst; p++ {
		total += r.tokensByPriority[p]
	}
	return total
}

// EvictionOrder lists the items of one category in the order the eviction
// engine would consider them: worst priority first, then oldest first.
// Critical items are included last even though they are never evicted.
func (r *Registry) EvictionOrder(c Category) []Item {
	out := make([]Item, 0, len(r.byCategory[c]))
	for _, e := range r.byCategory[c] {
		out = append(out, e.item.clone())
	}
	slices.SortFunc(out, func(a, b Item) int {
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		return cmpSeq(a.InsertedAt, b.InsertedAt)
	})
	return out
}

// Snapshot returns copies of the items accepted by match, most important
// first and oldest first within a priority.
func (r *Registry) Snapshot(match func(*Item) bool) []Item {
	out := make([]Item, 0, len(r.items))
	for _, e := range r.items {
		if match == nil || match(&e.item) {
			out = append(out, e.item.clone())
		}
	}
	slices.SortFunc(out, func(a, b Item) int {
		if a.Priority != b.Priority {
			return int(a.Priority) - int(b.Priority)
		}
		return cmpSeq(a.InsertedAt, b.InsertedAt)
	})
	return out
}

// Clear drops every item. The sequence counter keeps counting so that
// InsertedAt stays monotonic across resets.
func (r *Registry) Clear() {
	r.items = make(map[ItemID]*entry)
	for i := range r.byCategory {
		r.byCategory[i] = make(map[ItemID]*entry)
		r.tokensByCategory[i] = 0
	}
	for i := range r.tiers {
		r.tiers[i] = nil
		r.tokensByPriority[i] = 0
	}
}

func cmpSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
