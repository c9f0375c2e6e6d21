// Package kv is the durable key-value substrate under every persisted piece
// of Buddy state. It knows nothing about entry shapes: values are opaque
// bytes, and Value adds JSON encoding with a caller-supplied default.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Keys used by the application namespace.
const (
	KeyLanguage    = "language"
	KeyBirthDate   = "birthDate"
	KeyMoodHistory = "moodHistory"
	KeyReflections = "reflections"
	KeyStories     = "stories"
	KeyPoints      = "points"
	KeyActiveTasks = "activeTasks"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a namespaced byte store. Every Set must be visible to the next Get
// in the same process.
type Store interface {
	// Get returns the raw value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the raw value, replacing any previous one.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes a key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every key of the namespace.
	Clear(ctx context.Context) error
	// Keys lists the keys currently present, sorted.
	Keys(ctx context.Context) ([]string, error)
	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error
	// Close releases the store's resources.
	Close() error
}

// Value is typed JSON access to a single key. Reads never fail: a missing,
// unreadable, null or corrupted value yields the default.
type Value[T any] struct {
	store  Store
	key    string
	def    func() T
	logger zerolog.Logger
}

// NewValue binds a key to a type. def is called for every fallback so that
// callers never share a default slice or map.
func NewValue[T any](store Store, key string, def func() T, logger zerolog.Logger) Value[T] {
	return Value[T]{
		store:  store,
		key:    key,
		def:    def,
		logger: logger.With().Str("component", "kv").Str("key", key).Logger(),
	}
}

// Get decodes the stored value or returns the default.
func (v Value[T]) Get(ctx context.Context) T {
	raw, ok, err := v.store.Get(ctx, v.key)
	if err != nil {
		v.logger.Warn().Err(err).Msg("read failed, using default")
		return v.def()
	}
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return v.def()
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		v.logger.Warn().Err(err).Msg("corrupted value, using default")
		return v.def()
	}
	return out
}

// Set encodes and stores val.
func (v Value[T]) Set(ctx context.Context, val T) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", v.key, err)
	}
	if err := v.store.Set(ctx, v.key, raw); err != nil {
		return fmt.Errorf("write %s: %w", v.key, err)
	}
	return nil
}

// Update applies fn to the current value and stores the result.
// The read-modify-write is not atomic across processes; callers serialize
// access to a key themselves.
func (v Value[T]) Update(ctx context.Context, fn func(T) T) (T, error) {
	next := fn(v.Get(ctx))
	return next, v.Set(ctx, next)
}
