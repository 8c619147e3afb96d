package contextbuf

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/metrics"
)

// Defaults for Config.
const (
	DefaultMaxTokens    = 4096
	DefaultBufferRatio  = 0.2
	DefaultWorkers      = 2
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 10 * time.Second
)

// Config sizes a Buffer.
type Config struct {
	MaxTokens   int
	BufferRatio float64
	// ModelID is passed through to the Tokenizer on every Add.
	ModelID string
	// TokenizeTimeout bounds each Tokenizer call. Zero means no bound beyond the caller's context.
	TokenizeTimeout time.Duration
	// ProtectHigh keeps high priority items out of automatic eviction, like
	// critical ones. By default eviction walks low, medium, then high; with
	// ProtectHigh it stops after medium, so an add that only high items could
	// make room for fails with ErrCapacityExceeded instead.
	ProtectHigh bool
}

// DefaultConfig returns a 4096-token buffer with a 20% reserve.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   DefaultMaxTokens,
		BufferRatio: DefaultBufferRatio,
	}
}

func (c Config) validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.BufferRatio < 0 || c.BufferRatio >= 1 {
		return fmt.Errorf("buffer ratio must be in [0,1), got %v", c.BufferRatio)
	}
	if c.TokenizeTimeout < 0 {
		return fmt.Errorf("tokenize timeout must not be negative, got %v", c.TokenizeTimeout)
	}
	return nil
}

type options struct {
	archive        Archive
	workers        int
	queueSize      int
	writeTimeout   time.Duration
	onArchiveError func(Item, error)
	recorder       metrics.Recorder
	logger         *logx.Logger
	tracerProvider trace.TracerProvider
	newID          func() ItemID
}

// Option configures optional collaborators of a Buffer.
type Option func(*options)

// WithArchive sets where promoted items go. Without an archive they are dropped.
func WithArchive(a Archive) Option {
	return func(o *options) { o.archive = a }
}

// WithArchiveWorkers sets the number of concurrent archive writers and the queue depth.
func WithArchiveWorkers(workers, queueSize int) Option {
	return func(o *options) {
		if workers > 0 {
			o.workers = workers
		}
		if queueSize > 0 {
			o.queueSize = queueSize
		}
	}
}

// WithArchiveWriteTimeout bounds each archive Store call.
func WithArchiveWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithArchiveErrorHandler is called, from an archive worker, for every failed write.
func WithArchiveErrorHandler(fn func(Item, error)) Option {
	return func(o *options) { o.onArchiveError = fn }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithLogger(l *logx.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithIDGenerator replaces the UUID item identifiers, mostly for tests.
func WithIDGenerator(fn func() ItemID) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func defaultOptions() options {
	return options{
		workers:      DefaultWorkers,
		queueSize:    DefaultQueueSize,
		writeTimeout: DefaultWriteTimeout,
		recorder:     metrics.Nop(),
		logger:       logx.NewLogger("contextbuf"),
		newID:        func() ItemID { return ItemID(uuid.NewString()) },
	}
}

type addOptions struct {
	metadata map[string]string
}

// AddOption configures a single Add call.
type AddOption func(*addOptions)

// WithMetadata attaches opaque string metadata such as a file path or source tag.
func WithMetadata(md map[string]string) AddOption {
	return func(o *addOptions) { o.metadata = md }
}

type query struct {
	category    Category
	hasCategory bool
	minPriority Priority
	hasMin      bool
}

func (q *query) match(it *Item) bool {
	if q.hasCategory && it.Category != q.category {
		return false
	}
	if q.hasMin && !it.Priority.AtLeast(q.minPriority) {
		return false
	}
	return true
}

// QueryOption narrows Query results.
type QueryOption func(*query)

// InCategory keeps only items of category c.
func InCategory(c Category) QueryOption {
	return func(q *query) {
		q.category = c
		q.hasCategory = true
	}
}

// MinPriority keeps only items at least as important as p.
func MinPriority(p Priority) QueryOption {
	return func(q *query) {
		q.minPriority = p
		q.hasMin = true
	}
}
