// Package archive provides long-term stores for items promoted out of a
// context buffer. Every store satisfies contextbuf.Archive and can read back
// what it holds for reporting.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
)

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

var (
	// ErrNotFound is returned by Get for an unknown key.
	ErrNotFound = errors.New("archived item not found")
	// ErrUnknownBackend is returned by Open for an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown archive backend")
)

// Record is an archived item and where it was stored.
type Record struct {
	Key        string          `json:"key"`
	Item       contextbuf.Item `json:"item"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// Filter narrows List results. The zero value matches everything.
type Filter struct {
	Category    *contextbuf.Category
	MinPriority *contextbuf.Priority
	// Limit caps the number of records; zero means no cap.
	Limit int
}

func (f Filter) match(item *contextbuf.Item) bool {
	if f.Category != nil && item.Category != *f.Category {
		return false
	}
	if f.MinPriority != nil && !item.Priority.AtLeast(*f.MinPriority) {
		return false
	}
	return true
}

// Store is a readable archive.
type Store interface {
	contextbuf.Archive
	Get(ctx context.Context, key string) (Record, error)
	// List returns matching records oldest first.
	List(ctx context.Context, f Filter) ([]Record, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Config selects and tunes an archive backend.
type Config struct {
	Backend    string        `json:"backend" yaml:"backend"`
	SQLitePath string        `json:"sqlite_path" yaml:"sqlite_path"`
	RedisURL   string        `json:"redis_url" yaml:"redis_url"`
	RedisTTL   time.Duration `json:"redis_ttl" yaml:"redis_ttl"`
	KeyPrefix  string        `json:"key_prefix" yaml:"key_prefix"`
}

// Open builds the store named by cfg.Backend. It returns a nil Store for the
// "none" backend, meaning promoted items are dropped.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendNone:
		return nil, nil //nolint:nilnil // no archive is a valid configuration
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			URL:       cfg.RedisURL,
			TTL:       cfg.RedisTTL,
			KeyPrefix: cfg.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
