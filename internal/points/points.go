// Package points keeps the per-category activity counters.
package points

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/kv"
)

// Category is one of the four point counters.
type Category string

const (
	Gratitude  Category = "gratitude"
	Physical   Category = "physical"
	Kindness   Category = "kindness"
	Creativity Category = "creativity"
)

// Categories lists the counters in display order.
var Categories = []Category{Gratitude, Physical, Kindness, Creativity}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if Category(s) == c {
			return c, nil
		}
	}
	return "", perrors.Invalid("points category %q is not known", s)
}

// Points is the persisted counter record. The total is never stored.
type Points struct {
	Gratitude  int `json:"gratitude"`
	Physical   int `json:"physical"`
	Kindness   int `json:"kindness"`
	Creativity int `json:"creativity"`
}

// Total sums all counters.
func (p Points) Total() int {
	return p.Gratitude + p.Physical + p.Kindness + p.Creativity
}

// Of returns the counter of c.
func (p Points) Of(c Category) int {
	switch c {
	case Gratitude:
		return p.Gratitude
	case Physical:
		return p.Physical
	case Kindness:
		return p.Kindness
	case Creativity:
		return p.Creativity
	}
	return 0
}

func (p *Points) add(c Category, n int) {
	switch c {
	case Gratitude:
		p.Gratitude += n
	case Physical:
		p.Physical += n
	case Kindness:
		p.Kindness += n
	case Creativity:
		p.Creativity += n
	}
}

// Ledger owns the points key.
type Ledger struct {
	mu     sync.Mutex
	value  kv.Value[Points]
	logger zerolog.Logger
}

// NewLedger binds the ledger to store.
func NewLedger(store kv.Store, logger zerolog.Logger) *Ledger {
	return &Ledger{
		value:  kv.NewValue(store, kv.KeyPoints, func() Points { return Points{} }, logger),
		logger: logger.With().Str("component", "points").Logger(),
	}
}

// Add increases one counter by a non-negative amount and returns the new
// record.
func (l *Ledger) Add(ctx context.Context, c Category, amount int) (Points, error) {
	if _, err := ParseCategory(string(c)); err != nil {
		return Points{}, err
	}
	if amount < 0 {
		return Points{}, perrors.Invalid("points amount %d is negative", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.value.Update(ctx, func(p Points) Points {
		p.add(c, amount)
		return p
	})
	if err != nil {
		return p, err
	}
	l.logger.Debug().Str("category", string(c)).Int("amount", amount).Int("total", p.Total()).Msg("points added")
	return p, nil
}

// Get returns the current record.
func (l *Ledger) Get(ctx context.Context) Points {
	return l.value.Get(ctx)
}

// Total returns the current sum of all counters.
func (l *Ledger) Total(ctx context.Context) int {
	return l.Get(ctx).Total()
}
