// Package contextbuf implements a token-bounded buffer of context items with
// priority- and age-based eviction and promotion of evicted items to an archive.
package contextbuf

import (
	"context"
	"fmt"
	"strings"
)

// Category partitions items for reporting. It never influences eviction order.
type Category int

const (
	CategorySystem Category = iota
	CategoryUser
	CategoryCode
	CategoryMemory

	numCategories = int(CategoryMemory) + 1
)

//nolint:gochecknoglobals // static lookup table
var categoryNames = [numCategories]string{"system", "user", "code", "memory"}

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{CategorySystem, CategoryUser, CategoryCode, CategoryMemory}
}

func (c Category) Valid() bool {
	return c >= CategorySystem && c <= CategoryMemory
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory maps a case-insensitive name to a Category.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Priority ranks items. Lower values are more important.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow

	numPriorities = int(PriorityLow) + 1
)

//nolint:gochecknoglobals // static lookup table
var priorityNames = [numPriorities]string{"critical", "high", "medium", "low"}

// Priorities returns every priority from most to least important.
func Priorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

func (p Priority) String() string {
	if !p.Valid() {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// AtLeast reports whether p is as important as min or more.
func (p Priority) AtLeast(minPriority Priority) bool {
	return p <= minPriority
}

// Archivable reports whether an evicted item of this priority is promoted to
// the archive rather than discarded.
func (p Priority) Archivable() bool {
	return p.AtLeast(PriorityMedium)
}

// ParsePriority maps a case-insensitive name to a Priority.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ItemID identifies an item for the lifetime of the buffer.
type ItemID string

// Item is a piece of context held by the buffer. Stored items are never
// mutated; replacing content means removing and adding again.
type Item struct {
	ID         ItemID            `json:"id"`
	Content    string            `json:"content"`
	Category   Category          `json:"category"`
	Priority   Priority          `json:"priority"`
	TokenCount int               `json:"token_count"`
	InsertedAt uint64            `json:"inserted_at"`
	ModelID    string            `json:"model_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// clone returns a copy that shares no mutable state with it.
func (it Item) clone() Item {
	out := it
	if it.Metadata != nil {
		out.Metadata = make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Tokenizer measures the token cost of text for a model. Implementations may
// call remote services and may fail or be approximate.
type Tokenizer interface {
	Count(ctx context.Context, text, modelID string) (int, error)
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(ctx context.Context, text, modelID string) (int, error)

func (f TokenizerFunc) Count(ctx context.Context, text, modelID string) (int, error) {
	return f(ctx, text, modelID)
}

// Archive receives items promoted out of the buffer. The buffer never reads back.
type Archive interface {
	Store(ctx context.Context, item Item) (string, error)
}
