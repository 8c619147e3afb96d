package contextbuf

// EvictionResult reports what a FreeSpace call removed from the registry.
type EvictionResult struct {
	Evicted   []Item // every removed item, in eviction order
	Promoted  []Item // medium priority or better, headed for the archive
	Discarded []Item // low priority, dropped
	Freed     int
}

// Evictor frees registry space tier by tier, from low up to high priority,
// oldest first within a tier across all categories. Critical items are never
// touched.
type Evictor struct {
	registry *Registry
	best     Priority // most important tier that may be evicted
}

func NewEvictor(r *Registry) *Evictor {
	return &Evictor{registry: r, best: PriorityHigh}
}

// NewProtectHighEvictor returns an evictor that stops at the medium tier,
// leaving high and critical items in place.
func NewProtectHighEvictor(r *Registry) *Evictor {
	return &Evictor{registry: r, best: PriorityMedium}
}

// FreeSpace removes items until at least need tokens are freed. Feasibility is
// checked before anything is removed, so a failing call leaves the registry
// unchanged.
func (e *Evictor) FreeSpace(need int) (EvictionResult, error) {
	var res EvictionResult
	if need <= 0 {
		return res, nil
	}

	if evictable := e.registry.TokensInTiers(e.best, PriorityLow); evictable < need {
		return res, &CapacityError{
			Kind:      ErrCapacityExceeded,
			Need:      need,
			Evictable: evictable,
		}
	}

	for tier := PriorityLow; tier >= e.best && res.Freed < need; tier-- {
		for res.Freed < need {
			item, ok := e.registry.PopOldest(tier)
			if !ok {
				break
			}
			res.Freed += item.TokenCount
			res.Evicted = append(res.Evicted, item)
			if item.Priority.Archivable() {
				res.Promoted = append(res.Promoted, item)
			} else {
				res.Discarded = append(res.Discarded, item)
			}
		}
	}

	// Unreachable while the feasibility check holds; kept so a registry
	// accounting bug surfaces as an error instead of a budget overrun.
	if res.Freed < need {
		return res, &CapacityError{Kind: ErrCapacityExceeded, Need: need, Evictable: res.Freed}
	}
	return res, nil
}
