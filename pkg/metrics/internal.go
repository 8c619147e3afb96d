package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory aggregation.
// It backs the CLI report and tests without a Prometheus registry.
type InternalRecorder struct {
	snap Snapshot
	mu   sync.RWMutex
}

// Snapshot is a copy of the aggregated counters.
//
//nolint:govet
type Snapshot struct {
	Adds          map[string]int64 `json:"adds"` // by status
	AddedTokens   int64            `json:"added_tokens"`
	Evictions     map[string]int64 `json:"evictions"` // by outcome
	EvictedTokens int64            `json:"evicted_tokens"`
	ArchiveOK     int64            `json:"archive_ok"`
	ArchiveFailed int64            `json:"archive_failed"`
	TokenizeCalls int64            `json:"tokenize_calls"`
	TokenizeTime  time.Duration    `json:"tokenize_time"`
	CurrentTokens int              `json:"current_tokens"`
	UsableTokens  int              `json:"usable_tokens"`
	LastUpdated   time.Time        `json:"last_updated"`
}

func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		snap: Snapshot{
			Adds:      make(map[string]int64),
			Evictions: make(map[string]int64),
		},
	}
}

func (r *InternalRecorder) ObserveAdd(_, _, status string, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Adds[status]++
	if status == StatusSuccess {
		r.snap.AddedTokens += int64(tokens)
	}
	r.snap.LastUpdated = time.Now()
}

func (r *InternalRecorder) ObserveEviction(_, outcome string, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Evictions[outcome]++
	r.snap.EvictedTokens += int64(tokens)
	r.snap.LastUpdated = time.Now()
}

func (r *InternalRecorder) ObserveArchiveWrite(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.snap.ArchiveOK++
	} else {
		r.snap.ArchiveFailed++
	}
	r.snap.LastUpdated = time.Now()
}

func (r *InternalRecorder) ObserveTokenize(_ string, _ bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.TokenizeCalls++
	r.snap.TokenizeTime += duration
}

func (r *InternalRecorder) SetUsage(current, usable int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.CurrentTokens = current
	r.snap.UsableTokens = usable
	r.snap.LastUpdated = time.Now()
}

// Snapshot returns a copy of the aggregated metrics.
func (r *InternalRecorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.snap
	out.Adds = make(map[string]int64, len(r.snap.Adds))
	for k, v := range r.snap.Adds {
		out.Adds[k] = v
	}
	out.Evictions = make(map[string]int64, len(r.snap.Evictions))
	for k, v := range r.snap.Evictions {
		out.Evictions[k] = v
	}
	return out
}

// Multi fans every observation out to several recorders.
type Multi []Recorder

func (m Multi) ObserveAdd(category, priority, status string, tokens int) {
	for _, r := range m {
		r.ObserveAdd(category, priority, status, tokens)
	}
}

func (m Multi) ObserveEviction(priority, outcome string, tokens int) {
	for _, r := range m {
		r.ObserveEviction(priority, outcome, tokens)
	}
}

func (m Multi) ObserveArchiveWrite(success bool) {
	for _, r := range m {
		r.ObserveArchiveWrite(success)
	}
}

func (m Multi) ObserveTokenize(modelID string, success bool, duration time.Duration) {
	for _, r := range m {
		r.ObserveTokenize(modelID, success, duration)
	}
}

func (m Multi) SetUsage(current, usable int) {
	for _, r := range m {
		r.SetUsage(current, usable)
	}
}
