package contextbuf

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/metrics"
)

const tracerName = "github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"

// Buffer is a token-bounded store of context items. One lock covers the
// registry and the budget; tokenization runs outside it.
type Buffer struct {
	cfg       Config
	tokenizer Tokenizer
	archiver  *archiver
	recorder  metrics.Recorder
	logger    *logx.Logger
	tracer    trace.Tracer
	newID     func() ItemID

	mu       sync.RWMutex
	registry *Registry
	budget   *Budget
	evictor  *Evictor
	closed   bool
}

// New creates a buffer. tok is required; the archive and observability
// collaborators come from opts.
func New(cfg Config, tok Tokenizer, opts ...Option) (*Buffer, error) {
	if tok == nil {
		return nil, errors.New("tokenizer is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid buffer config: %w", err)
	}
	budget, err := NewBudget(cfg.MaxTokens, cfg.BufferRatio)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	registry := NewRegistry()
	evictor := NewEvictor(registry)
	if cfg.ProtectHigh {
		evictor = NewProtectHighEvictor(registry)
	}
	b := &Buffer{
		cfg:       cfg,
		tokenizer: tok,
		recorder:  o.recorder,
		logger:    o.logger,
		tracer:    tp.Tracer(tracerName),
		newID:     o.newID,
		registry:  registry,
		budget:    budget,
		evictor:   evictor,
	}
	if o.archive != nil {
		b.archiver = newArchiver(o.archive, o.workers, o.queueSize, o.writeTimeout,
			o.onArchiveError, o.logger.With("archiver"), o.recorder)
	}
	b.recorder.SetUsage(0, budget.Usable())
	b.logger.Debug("buffer ready: max=%d reserve=%d usable=%d model=%q",
		budget.Max(), budget.Reserve(), budget.Usable(), cfg.ModelID)
	return b, nil
}

// Add tokenizes content and stores it, evicting lower-value items when the
// usable capacity would be exceeded. On error the buffer is unchanged.
func (b *Buffer) Add(ctx context.Context, content string, category Category, priority Priority, opts ...AddOption) (ItemID, error) {
	ctx, span := b.tracer.Start(ctx, "contextbuf.Add", trace.WithAttributes(
		attribute.String("contextbuf.category", category.String()),
		attribute.String("contextbuf.priority", priority.String()),
	))
	defer span.End()

	id, tokens, res, err := b.add(ctx, content, category, priority, opts)
	span.SetAttributes(
		attribute.Int("contextbuf.tokens", tokens),
		attribute.Int("contextbuf.evicted", len(res.Evicted)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.recorder.ObserveAdd(category.String(), priority.String(), statusOf(err), tokens)
		return "", err
	}

	b.recorder.ObserveAdd(category.String(), priority.String(), metrics.StatusSuccess, tokens)
	b.afterEviction(ctx, res)
	return id, nil
}

func (b *Buffer) add(ctx context.Context, content string, category Category, priority Priority,
	opts []AddOption,
) (ItemID, int, EvictionResult, error) {
	var res EvictionResult
	if !category.Valid() {
		return "", 0, res, fmt.Errorf("%w: %d", ErrInvalidCategory, int(category))
	}
	if !priority.Valid() {
		return "", 0, res, fmt.Errorf("%w: %d", ErrInvalidPriority, int(priority))
	}
	var ao addOptions
	for _, opt := range opts {
		opt(&ao)
	}

	tokens, err := b.count(ctx, content)
	if err != nil {
		return "", 0, res, err
	}

	// Max and reserve never change, so this check needs no lock.
	if usable := b.budget.Usable(); tokens > usable {
		return "", tokens, res, &CapacityError{Kind: ErrSizeExceedsCapacity, Tokens: tokens, Usable: usable}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", tokens, res, ErrClosed
	}
	id := b.newID()
	if _, dup := b.registry.Get(id); dup {
		return "", tokens, res, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	// Re-validate now that the lock is held; other adds may have landed during tokenization.
	need := tokens - b.budget.RemainingCapacity()
	if need > 0 {
		res, err = b.evictor.FreeSpace(need)
		if err != nil {
			var capErr *CapacityError
			if errors.As(err, &capErr) {
				capErr.Tokens = tokens
				capErr.Usable = b.budget.Usable()
			}
			return "", tokens, res, err
		}
		if err := b.budget.Release(res.Freed); err != nil {
			return "", tokens, res, fmt.Errorf("release evicted tokens: %w", err)
		}
		logx.Debug(ctx, "eviction", "freed %d tokens from %d items for a %d-token %s item",
			res.Freed, len(res.Evicted), tokens, priority)
	}

	item := b.registry.Insert(Item{
		ID:         id,
		Content:    content,
		Category:   category,
		Priority:   priority,
		TokenCount: tokens,
		ModelID:    b.cfg.ModelID,
		Metadata:   ao.metadata,
	})
	if err := b.budget.Commit(tokens); err != nil {
		b.registry.Remove(item.ID)
		return "", tokens, res, fmt.Errorf("commit tokens: %w", err)
	}
	b.recorder.SetUsage(b.budget.Current(), b.budget.Usable())
	return item.ID, tokens, res, nil
}

// count calls the tokenizer under the configured timeout.
func (b *Buffer) count(ctx context.Context, content string) (int, error) {
	if b.cfg.TokenizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.TokenizeTimeout)
		defer cancel()
	}

	start := time.Now()
	n, err := b.tokenizer.Count(ctx, content, b.cfg.ModelID)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil && n < 0 {
		err = fmt.Errorf("negative token count %d", n)
	}
	b.recorder.ObserveTokenize(b.cfg.ModelID, err == nil, time.Since(start))
	if err != nil {
		return 0, &TokenizationError{ModelID: b.cfg.ModelID, Err: err}
	}
	return n, nil
}

// afterEviction reports evicted items and hands promoted ones to the archive.
// It runs after the lock is released.
func (b *Buffer) afterEviction(ctx context.Context, res EvictionResult) {
	for _, item := range res.Discarded {
		b.recorder.ObserveEviction(item.Priority.String(), metrics.OutcomeDiscarded, item.TokenCount)
	}
	for _, item := range res.Promoted {
		b.recorder.ObserveEviction(item.Priority.String(), metrics.OutcomePromoted, item.TokenCount)
		if b.archiver == nil {
			logx.Debug(ctx, "archive", "no archive configured, dropping promoted item %s", item.ID)
			continue
		}
		b.archiver.submit(item)
	}
}

// Remove deletes id and releases its tokens. It returns false when id is not held.
func (b *Buffer) Remove(id ItemID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.registry.Remove(id)
	if !ok {
		return false
	}
	if err := b.budget.Release(item.TokenCount); err != nil {
		// Registry and budget totals disagree; resync rather than leave the budget wrong.
		b.logger.Error("release on remove of %s: %v", id, err)
		b.budget.Reset()
		if err := b.budget.Commit(b.registry.TotalTokens()); err != nil {
			b.logger.Error("resync budget after remove of %s: %v", id, err)
		}
	}
	b.recorder.SetUsage(b.budget.Current(), b.budget.Usable())
	return true
}

// Get returns a copy of the item with id.
func (b *Buffer) Get(id ItemID) (Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.Get(id)
}

// Query returns a lazy sequence of copies of the matching items, most
// important first and oldest first within a priority. Each range over the
// sequence takes a fresh snapshot, so it can be iterated again.
func (b *Buffer) Query(opts ...QueryOption) iter.Seq[Item] {
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	return func(yield func(Item) bool) {
		b.mu.RLock()
		items := b.registry.Snapshot(q.match)
		b.mu.RUnlock()

		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

// EvictionOrder lists the items of category c in the order eviction would
// consider them.
func (b *Buffer) EvictionOrder(c Category) []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.EvictionOrder(c)
}

// Utilization is currentTokens / maxTokens.
func (b *Buffer) Utilization() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.budget.Utilization()
}

// Reset drops every item and zeroes the budget. Nothing is archived.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := b.registry.Len()
	b.registry.Clear()
	b.budget.Reset()
	b.recorder.SetUsage(0, b.budget.Usable())
	b.logger.Info("buffer reset, %d items dropped", dropped)
}

// FlushArchive waits until every promoted item handed to the archive has been written.
func (b *Buffer) FlushArchive(ctx context.Context) error {
	if b.archiver == nil {
		return nil
	}
	return b.archiver.flush(ctx)
}

// Close rejects further adds and waits for pending archive writes.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if b.archiver == nil {
		return nil
	}
	return b.archiver.close(ctx)
}

func (b *Buffer) Config() Config {
	return b.cfg
}

// Stats describes buffer occupancy.
type Stats struct {
	Items            int              `json:"items"`
	CurrentTokens    int              `json:"current_tokens"`
	MaxTokens        int              `json:"max_tokens"`
	ReserveTokens    int              `json:"reserve_tokens"`
	UsableTokens     int              `json:"usable_tokens"`
	Utilization      float64          `json:"utilization"`
	EvictableTokens  int              `json:"evictable_tokens"`
	ItemsByCategory  map[Category]int `json:"items_by_category"`
	TokensByCategory map[Category]int `json:"tokens_by_category"`
	ItemsByPriority  map[Priority]int `json:"items_by_priority"`
	TokensByPriority map[Priority]int `json:"tokens_by_priority"`
}

func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		Items:            b.registry.Len(),
		CurrentTokens:    b.budget.Current(),
		MaxTokens:        b.budget.Max(),
		ReserveTokens:    b.budget.Reserve(),
		UsableTokens:     b.budget.Usable(),
		Utilization:      b.budget.Utilization(),
		EvictableTokens:  b.registry.TokensInTiers(b.evictor.best, PriorityLow),
		ItemsByCategory:  make(map[Category]int, numCategories),
		TokensByCategory: make(map[Category]int, numCategories),
		ItemsByPriority:  make(map[Priority]int, numPriorities),
		TokensByPriority: make(map[Priority]int, numPriorities),
	}
	for _, c := range Categories() {
		s.ItemsByCategory[c] = b.registry.CountByCategory(c)
		s.TokensByCategory[c] = b.registry.TokensByCategory(c)
	}
	for _, p := range Priorities() {
		s.ItemsByPriority[p] = b.registry.CountByPriority(p)
		s.TokensByPriority[p] = b.registry.TokensByPriority(p)
	}
	return s
}

// Summary returns a one-line description of the buffer for logs.
func (b *Buffer) Summary() string {
	s := b.Stats()
	if s.Items == 0 {
		return fmt.Sprintf("empty (0/%d tokens usable)", s.UsableTokens)
	}

	var parts []string
	for _, c := range Categories() {
		if n := s.ItemsByCategory[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", c, n))
		}
	}
	return fmt.Sprintf("%d items (%d/%d tokens, %.0f%%) - %s",
		s.Items, s.CurrentTokens, s.UsableTokens, s.Utilization*100, strings.Join(parts, ", "))
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, ErrTokenization):
		return "tokenization"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrInvalidCategory), errors.Is(err, ErrInvalidPriority), errors.Is(err, ErrDuplicateID):
		return "invalid"
	default:
		return metrics.StatusError
	}
}
