// Package i18n resolves dotted translation keys against one of the loaded
// language packs.
//
// The three packs are loaded once, in parallel, when the application starts.
// Loading is fail-soft: if any pack cannot be fetched or parsed, every pack is
// replaced by an empty dictionary and lookups fall back to the literal
// fallback or the raw key. Lookups made before loading finishes behave the
// same way.
package i18n

import (
	"strings"
	"sync"

	"github.com/p-blackswan/buddy/internal/identity"
)

// Dictionary is one decoded language pack.
type Dictionary map[string]any

// Resolver holds the loaded dictionaries. The zero value is not usable; call
// NewResolver.
type Resolver struct {
	mu     sync.RWMutex
	dicts  map[identity.Language]Dictionary
	loaded bool
	ready  chan struct{}
	once   sync.Once
}

// NewResolver returns a resolver with nothing loaded yet.
func NewResolver() *Resolver {
	return &Resolver{ready: make(chan struct{})}
}

// Install replaces the dictionaries and marks the resolver loaded. Languages
// missing from dicts get an empty dictionary.
func (r *Resolver) Install(dicts map[identity.Language]Dictionary) {
	full := make(map[identity.Language]Dictionary, len(identity.Languages))
	for _, l := range identity.Languages {
		d := dicts[l]
		if d == nil {
			d = Dictionary{}
		}
		full[l] = d
	}

	r.mu.Lock()
	r.dicts = full
	r.loaded = true
	r.mu.Unlock()
	r.once.Do(func() { close(r.ready) })
}

// Ready is closed once the first load attempt has finished, successfully or
// not.
func (r *Resolver) Ready() <-chan struct{} {
	return r.ready
}

// Loaded reports whether dictionaries have been installed.
func (r *Resolver) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Resolve walks key, split on ".", through the dictionary of lang (English
// when lang is empty). The value is returned as decoded: a string, a []any, or
// a map[string]any. A missing segment, an empty key, or an unloaded resolver
// yields the first non-empty fallback, or the key itself.
func (r *Resolver) Resolve(lang identity.Language, key string, fallback ...string) any {
	miss := func() any {
		for _, f := range fallback {
			if f != "" {
				return f
			}
		}
		return key
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.loaded || key == "" {
		return miss()
	}
	if lang == "" {
		lang = identity.DefaultLanguage
	}
	dict, ok := r.dicts[lang]
	if !ok {
		return miss()
	}

	var cur any = map[string]any(dict)
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return miss()
		}
		next, ok := m[seg]
		if !ok || next == nil {
			return miss()
		}
		cur = next
	}
	return cur
}

// String resolves key and returns it when it is a string. Any other shape
// yields the fallback, or the key.
func (r *Resolver) String(lang identity.Language, key string, fallback ...string) string {
	switch v := r.Resolve(lang, key, fallback...).(type) {
	case string:
		return v
	default:
		for _, f := range fallback {
			if f != "" {
				return f
			}
		}
		return key
	}
}

// Strings resolves key as a list of strings, used for prompt pools.
// Non-string elements are skipped; a missing key or non-list value yields nil.
func (r *Resolver) Strings(lang identity.Language, key string) []string {
	list, ok := r.Resolve(lang, key, "").([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Format replaces {name} placeholders in template with vars.
func Format(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
