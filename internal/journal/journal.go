// Package journal persists the three append-only journal collections (moods,
// reflections, stories) and merges them into one time-descending timeline.
package journal

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/buddy/internal/kv"
)

// Store owns the journal keys of a kv namespace. Appends are serialized
// within the process.
type Store struct {
	mu          sync.Mutex
	moods       kv.Value[[]MoodEntry]
	reflections kv.Value[[]ReflectionEntry]
	stories     kv.Value[[]StoryEntry]
	now         func() time.Time
	logger      zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp entries created without a date.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore binds the journal collections to store.
func NewStore(store kv.Store, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		moods:       kv.NewValue(store, kv.KeyMoodHistory, func() []MoodEntry { return nil }, logger),
		reflections: kv.NewValue(store, kv.KeyReflections, func() []ReflectionEntry { return nil }, logger),
		stories:     kv.NewValue(store, kv.KeyStories, func() []StoryEntry { return nil }, logger),
		now:         time.Now,
		logger:      logger.With().Str("component", "journal").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// AddMood validates and appends a mood entry, returning the stored form.
func (s *Store) AddMood(ctx context.Context, e MoodEntry) (MoodEntry, error) {
	e, err := e.normalize()
	if err != nil {
		return e, err
	}
	e.Date = s.stamp(e.Date)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.moods.Update(ctx, func(list []MoodEntry) []MoodEntry { return append(list, e) }); err != nil {
		return e, err
	}
	s.logger.Debug().Int("moods", len(e.Moods)).Msg("mood added")
	return e, nil
}

// AddReflection validates and appends a reflection entry.
func (s *Store) AddReflection(ctx context.Context, e ReflectionEntry) (ReflectionEntry, error) {
	e, err := e.normalize()
	if err != nil {
		return e, err
	}
	e.Date = s.stamp(e.Date)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.reflections.Update(ctx, func(list []ReflectionEntry) []ReflectionEntry { return append(list, e) }); err != nil {
		return e, err
	}
	s.logger.Debug().Str("category", string(e.Category)).Msg("reflection added")
	return e, nil
}

// AddStory validates and appends a finished story.
func (s *Store) AddStory(ctx context.Context, e StoryEntry) (StoryEntry, error) {
	e, err := e.normalize()
	if err != nil {
		return e, err
	}
	e.Date = s.stamp(e.Date)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.stories.Update(ctx, func(list []StoryEntry) []StoryEntry { return append(list, e) }); err != nil {
		return e, err
	}
	s.logger.Debug().Int("segments", len(e.Content)).Msg("story added")
	return e, nil
}

// Moods returns the mood history in append order.
func (s *Store) Moods(ctx context.Context) []MoodEntry { return s.moods.Get(ctx) }

// Reflections returns the reflections in append order.
func (s *Store) Reflections(ctx context.Context) []ReflectionEntry { return s.reflections.Get(ctx) }

// Stories returns the stories in append order.
func (s *Store) Stories(ctx context.Context) []StoryEntry { return s.stories.Get(ctx) }

// Timeline yields every entry, newest first. Entries with equal timestamps
// keep insertion order: moods, then reflections, then stories, each in
// append order. The collections are read when iteration starts, so each
// range over the sequence sees the current journal.
func (s *Store) Timeline(ctx context.Context) iter.Seq[Entry] {
	return s.TimelineOf(ctx)
}

// TimelineOf is Timeline restricted to the given kinds. No kinds means all.
func (s *Store) TimelineOf(ctx context.Context, kinds ...Kind) iter.Seq[Entry] {
	want := func(k Kind) bool { return len(kinds) == 0 || slices.Contains(kinds, k) }

	return func(yield func(Entry) bool) {
		var all []Entry
		if want(KindMood) {
			for _, m := range s.Moods(ctx) {
				all = append(all, Entry{Kind: KindMood, Mood: &m})
			}
		}
		if want(KindReflection) {
			for _, r := range s.Reflections(ctx) {
				all = append(all, Entry{Kind: KindReflection, Reflection: &r})
			}
		}
		if want(KindStory) {
			for _, st := range s.Stories(ctx) {
				all = append(all, Entry{Kind: KindStory, Story: &st})
			}
		}

		slices.SortStableFunc(all, func(a, b Entry) int {
			return b.Date().Compare(a.Date())
		})
		for _, e := range all {
			if !yield(e) {
				return
			}
		}
	}
}

// MoodStat is the share of one mood across the mood history.
type MoodStat struct {
	Mood    Mood    `json:"mood"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// MoodStats counts every mood across all entries, legacy ones included, in
// order of first appearance. Percentages are fractions of the total count.
func (s *Store) MoodStats(ctx context.Context) []MoodStat {
	var (
		order  []Mood
		counts = map[Mood]int{}
		total  int
	)
	for _, e := range s.Moods(ctx) {
		for _, m := range e.Moods {
			if m == "" {
				continue
			}
			if counts[m] == 0 {
				order = append(order, m)
			}
			counts[m]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	stats := make([]MoodStat, 0, len(order))
	for _, m := range order {
		stats = append(stats, MoodStat{Mood: m, Count: counts[m], Percent: float64(counts[m]) / float64(total)})
	}
	return stats
}
