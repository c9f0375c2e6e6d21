// Package tasks caches the currently offered generated task per activity
// category so that a re-render never silently replaces or drops it.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/kv"
)

// Category is an activity with a generated task.
type Category string

const (
	Gratitude Category = "gratitude"
	Move      Category = "move"
	Kindness  Category = "kindness"
	Calm      Category = "calm"
)

// Categories lists the task categories.
var Categories = []Category{Gratitude, Move, Kindness, Calm}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if Category(s) == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", perrors.ErrUnknownCategory, s)
}

// Generator produces fresh content for a slot.
type Generator func(ctx context.Context) (string, error)

// Snapshot maps every category to its cached task, nil when empty.
type Snapshot map[Category]*string

// Cache owns the activeTasks key.
type Cache struct {
	mu     sync.Mutex
	epoch  uint64
	value  kv.Value[Snapshot]
	group  singleflight.Group
	logger zerolog.Logger
}

// NewCache binds the cache to store.
func NewCache(store kv.Store, logger zerolog.Logger) *Cache {
	return &Cache{
		value:  kv.NewValue(store, kv.KeyActiveTasks, func() Snapshot { return Snapshot{} }, logger),
		logger: logger.With().Str("component", "tasks").Logger(),
	}
}

func (c *Cache) cached(ctx context.Context, cat Category) (string, bool) {
	v := c.value.Get(ctx)[cat]
	if v == nil || *v == "" {
		return "", false
	}
	return *v, true
}

func (c *Cache) current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// store writes the slot unless the cache was invalidated after epoch was
// read. stale reports a dropped write.
func (c *Cache) store(ctx context.Context, cat Category, task *string, epoch uint64) (stale bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return true, nil
	}
	_, err = c.value.Update(ctx, func(s Snapshot) Snapshot {
		if s == nil {
			s = Snapshot{}
		}
		s[cat] = task
		return s
	})
	return false, err
}

// GetOrRequest returns the cached task of cat, or calls gen and caches its
// result. With forceRefresh the cache is bypassed and gen always runs.
// Concurrent non-forced callers for one category share a single gen call.
// A gen error is returned as is and leaves the slot untouched. An empty
// result is returned but never cached.
func (c *Cache) GetOrRequest(ctx context.Context, cat Category, gen Generator, forceRefresh bool) (string, error) {
	if _, err := ParseCategory(string(cat)); err != nil {
		return "", err
	}

	if forceRefresh {
		return c.generate(ctx, cat, gen)
	}
	if task, ok := c.cached(ctx, cat); ok {
		return task, nil
	}

	v, err, shared := c.group.Do(string(cat), func() (any, error) {
		if task, ok := c.cached(ctx, cat); ok {
			return task, nil
		}
		return c.generate(ctx, cat, gen)
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.Debug().Str("category", string(cat)).Msg("joined in-flight generation")
	}
	return v.(string), nil
}

func (c *Cache) generate(ctx context.Context, cat Category, gen Generator) (string, error) {
	epoch := c.current()
	task, err := gen(ctx)
	if err != nil {
		return "", err
	}
	var slot *string
	if task != "" {
		slot = &task
	}
	stale, err := c.store(ctx, cat, slot, epoch)
	if err != nil {
		return "", err
	}
	if stale {
		c.logger.Debug().Str("category", string(cat)).Msg("dropped task generated before invalidation")
		return task, nil
	}
	c.logger.Debug().Str("category", string(cat)).Msg("task cached")
	return task, nil
}

// Clear empties the slot of cat.
func (c *Cache) Clear(ctx context.Context, cat Category) error {
	if _, err := ParseCategory(string(cat)); err != nil {
		return err
	}
	_, err := c.store(ctx, cat, nil, c.current())
	return err
}

// Invalidate makes every generation still in flight skip its write, so a
// store cleared right after stays clean.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
	for _, cat := range Categories {
		c.group.Forget(string(cat))
	}
}

// Snapshot returns every category, including empty ones.
func (c *Cache) Snapshot(ctx context.Context) Snapshot {
	stored := c.value.Get(ctx)
	out := make(Snapshot, len(Categories))
	for _, cat := range Categories {
		out[cat] = stored[cat]
	}
	return out
}
