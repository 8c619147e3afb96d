package contextbuf

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenization is returned when the tokenizer fails, times out or returns a negative count.
	ErrTokenization = errors.New("tokenization failed")
	// ErrCapacityExceeded is returned when an item cannot fit even after evicting every non-critical item.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrSizeExceedsCapacity is returned when a single item is larger than the usable capacity.
	ErrSizeExceedsCapacity = fmt.Errorf("%w: item larger than usable capacity", ErrCapacityExceeded)
	// ErrArchiveWrite is reported through logs and metrics when a promoted item could not be archived.
	ErrArchiveWrite = errors.New("archive write failed")
	// ErrBudget is returned when a budget commit or release would leave the valid range.
	ErrBudget = errors.New("budget out of range")
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("context buffer closed")

	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPriority = errors.New("invalid priority")
	// ErrDuplicateID is returned when the ID generator yields an ID already held.
	ErrDuplicateID = errors.New("duplicate item id")
)

// TokenizationError carries the model and the tokenizer's own error.
type TokenizationError struct {
	ModelID string
	Err     error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("%v (model %q): %v", ErrTokenization, e.ModelID, e.Err)
}

func (e *TokenizationError) Unwrap() []error {
	return []error{ErrTokenization, e.Err}
}

// CapacityError describes why an item could not be admitted.
type CapacityError struct {
	Kind      error // ErrCapacityExceeded or ErrSizeExceedsCapacity
	Tokens    int   // cost of the rejected item
	Need      int   // tokens that had to be freed
	Evictable int   // tokens held by non-critical items
	Usable    int   // maxTokens - bufferTokens
}

func (e *CapacityError) Error() string {
	if errors.Is(e.Kind, ErrSizeExceedsCapacity) {
		return fmt.Sprintf("%v: %d tokens, usable %d", e.Kind, e.Tokens, e.Usable)
	}
	return fmt.Sprintf("%v: need %d tokens freed, only %d evictable (item %d, usable %d)",
		e.Kind, e.Need, e.Evictable, e.Tokens, e.Usable)
}

func (e *CapacityError) Unwrap() error {
	return e.Kind
}
