package contextbuf

import (
	"fmt"
	"math"
)

// Budget is pure token accounting with a safety reserve. It knows nothing of
// items and is not safe for concurrent use; the Buffer lock guards it.
type Budget struct {
	maxTokens int
	reserve   int
	current   int
}

// NewBudget creates a budget of maxTokens holding back round(maxTokens*bufferRatio).
func NewBudget(maxTokens int, bufferRatio float64) (*Budget, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	if bufferRatio < 0 || bufferRatio >= 1 || math.IsNaN(bufferRatio) {
		return nil, fmt.Errorf("buffer ratio must be in [0,1), got %v", bufferRatio)
	}
	return &Budget{
		maxTokens: maxTokens,
		reserve:   int(math.Round(float64(maxTokens) * bufferRatio)),
	}, nil
}

func (b *Budget) Max() int     { return b.maxTokens }
func (b *Budget) Reserve() int { return b.reserve }
func (b *Budget) Current() int { return b.current }

// Usable is the settled-state ceiling, maxTokens minus the reserve.
func (b *Budget) Usable() int {
	return b.maxTokens - b.reserve
}

// RemainingCapacity is how many tokens can be committed without eating into the reserve.
func (b *Budget) RemainingCapacity() int {
	if r := b.Usable() - b.current; r > 0 {
		return r
	}
	return 0
}

// HasSpace reports whether n more tokens fit in the usable capacity.
func (b *Budget) HasSpace(n int) bool {
	return n >= 0 && n <= b.RemainingCapacity()
}

// Commit adds n tokens. It never clamps: out-of-range results are errors.
func (b *Budget) Commit(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: commit of negative amount %d", ErrBudget, n)
	}
	if b.current+n > b.maxTokens {
		return fmt.Errorf("%w: commit %d would reach %d of max %d", ErrBudget, n, b.current+n, b.maxTokens)
	}
	b.current += n
	return nil
}

// Release subtracts n tokens.
func (b *Budget) Release(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: release of negative amount %d", ErrBudget, n)
	}
	if n > b.current {
		return fmt.Errorf("%w: release %d exceeds current %d", ErrBudget, n, b.current)
	}
	b.current -= n
	return nil
}

// Utilization is current / max.
func (b *Budget) Utilization() float64 {
	return float64(b.current) / float64(b.maxTokens)
}

func (b *Budget) Reset() {
	b.current = 0
}
