// Package activity produces the content of each activity: a generated task
// per category, supportive replies to mood check-ins, rhymes, and reflection
// prompts. Generation failures never reach the caller as errors for tasks;
// a pre-written fallback is used instead.
package activity

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/i18n"
	"github.com/p-blackswan/buddy/internal/identity"
	"github.com/p-blackswan/buddy/internal/journal"
	"github.com/p-blackswan/buddy/internal/llm"
	"github.com/p-blackswan/buddy/internal/metrics"
	"github.com/p-blackswan/buddy/internal/retry"
	"github.com/p-blackswan/buddy/internal/tasks"
)

// SupportFallback is the reply shown when mood support cannot be generated.
const SupportFallback = "I'm here for you! Let's keep going."

// Generator builds activity content. A nil provider means offline: every
// task comes from the fallback pools.
type Generator struct {
	provider llm.Provider
	tr       *i18n.Resolver
	retry    retry.Config
	metrics  *metrics.Metrics
	intn     func(n int) int
	logger   zerolog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetry overrides the retry policy of generation calls.
func WithRetry(cfg retry.Config) Option {
	return func(g *Generator) { g.retry = cfg }
}

// WithMetrics records generation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithRand replaces the random source used for topics and fallback picks.
func WithRand(intn func(n int) int) Option {
	return func(g *Generator) { g.intn = intn }
}

// NewGenerator creates a generator. provider may be nil.
func NewGenerator(provider llm.Provider, tr *i18n.Resolver, logger zerolog.Logger, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		tr:       tr,
		retry:    retry.DefaultConfig(),
		intn:     rand.IntN,
		logger:   logger.With().Str("component", "activity").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Offline reports whether no provider is configured.
func (g *Generator) Offline() bool { return g.provider == nil }

func (g *Generator) pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[g.intn(len(list))]
}

func languageInstruction(lang identity.Language) string {
	return fmt.Sprintf("Respond in %s.", lang.Name())
}

func ageOf(f identity.Facts) int {
	if f.Age == nil {
		return identity.MinAge
	}
	return *f.Age
}

func ageGroupOf(f identity.Facts) identity.AgeGroup {
	if f.AgeGroup == "" {
		return identity.Group7to9
	}
	return f.AgeGroup
}

// taskPrompt builds the one-shot prompt for cat.
func (g *Generator) taskPrompt(cat tasks.Category, f identity.Facts) string {
	topic := g.pick(topics[cat])
	lang := languageInstruction(f.Language)
	switch cat {
	case tasks.Gratitude:
		return fmt.Sprintf("Generate one short unique gratitude question for a %d-year-old about %s. %s Max 1 sentence.", ageOf(f), topic, lang)
	case tasks.Move:
		return fmt.Sprintf("Short fun physical task for someone who is %s year old about %s. %s Max 1 sentence command.", ageGroupOf(f), topic, lang)
	case tasks.Kindness:
		return fmt.Sprintf("Generate a single short act of kindness for a child aged %s about %s. %s Max 1 sentence command.", ageGroupOf(f), topic, lang)
	default:
		return fmt.Sprintf("Short mental calming exercise for someone aged %s about %s. %s Max 1 sentence command.", ageGroupOf(f), topic, lang)
	}
}

// Fallback picks a pre-written task for cat in lang: uniformly at random from
// the translated pool, except Move which always uses the first entry.
func (g *Generator) Fallback(cat tasks.Category, lang identity.Language) string {
	pool := g.tr.Strings(lang, screenKeys[cat]+".fallback_tasks")
	if len(pool) == 0 {
		pool = builtinPools[cat]
	}
	if cat == tasks.Move {
		return pool[0]
	}
	return g.pick(pool)
}

// Task generates a task for cat. It never fails. Offline mode and generation
// errors yield a pick from the fallback pool; a blank reply yields the fixed
// lastResort sentence of cat.
func (g *Generator) Task(ctx context.Context, cat tasks.Category, f identity.Facts) string {
	kind := string(cat)
	if g.Offline() {
		g.metrics.RecordGeneration(kind, metrics.OutcomeOffline)
		return g.Fallback(cat, f.Language)
	}

	req := llm.Prompt(g.taskPrompt(cat, f))
	req.Temperature = 1.0
	resp, err := retry.Value(ctx, g.retry, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return g.provider.Complete(ctx, req)
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("category", kind).Msg("generation failed, using fallback")
		g.metrics.RecordGeneration(kind, metrics.OutcomeFallback)
		return g.Fallback(cat, f.Language)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		g.metrics.RecordGeneration(kind, metrics.OutcomeFallback)
		return lastResort[cat]
	}
	g.metrics.RecordGeneration(kind, metrics.OutcomeGenerated)
	return text
}

// TaskGenerator adapts Task to the task cache.
func (g *Generator) TaskGenerator(cat tasks.Category, f identity.Facts) tasks.Generator {
	return func(ctx context.Context) (string, error) {
		return g.Task(ctx, cat, f), nil
	}
}

// MoodSupport streams a short supportive reply to a mood check-in. When
// generation fails before any text arrived, SupportFallback is yielded
// instead; a failure after partial text ends the sequence quietly. The only
// error yielded is ctx's, when the caller went away.
func (g *Generator) MoodSupport(ctx context.Context, f identity.Facts, moods []journal.Mood, note string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g.Offline() {
			g.metrics.RecordGeneration("mood_support", metrics.OutcomeOffline)
			yield(SupportFallback, nil)
			return
		}

		names := make([]string, len(moods))
		for i, m := range moods {
			names[i] = string(m)
		}
		prompt := fmt.Sprintf("You are Buddy, a supportive friend for a %d-year-old. User feels: %s. User note: %q. %s Be empathetic, encouraging, and brief (max 2 sentences).",
			ageOf(f), strings.Join(names, ", "), note, languageInstruction(f.Language))

		sent := false
		for chunk, err := range llm.StreamText(ctx, g.provider, llm.Prompt(prompt)) {
			if err != nil {
				if ctx.Err() != nil {
					yield("", ctx.Err())
					return
				}
				g.logger.Warn().Err(err).Bool("partial", sent).Msg("mood support failed")
				g.metrics.RecordGeneration("mood_support", metrics.OutcomeFallback)
				if !sent {
					yield(SupportFallback, nil)
				}
				return
			}
			sent = true
			if !yield(chunk, nil) {
				return
			}
		}
		if !sent {
			g.metrics.RecordGeneration("mood_support", metrics.OutcomeFallback)
			yield(SupportFallback, nil)
			return
		}
		g.metrics.RecordGeneration("mood_support", metrics.OutcomeGenerated)
	}
}

// Rhyme writes a four-line rhyme for name feeling mood. Unlike tasks there is
// no fallback: offline mode returns ErrOffline and failures are returned so
// that the caller can show a toast.
func (g *Generator) Rhyme(ctx context.Context, f identity.Facts, name, mood string) (string, error) {
	name, mood = strings.TrimSpace(name), strings.TrimSpace(mood)
	if name == "" || mood == "" {
		return "", perrors.Invalid("rhyme: name and mood are required")
	}
	if g.Offline() {
		g.metrics.RecordGeneration("rhyme", metrics.OutcomeOffline)
		return "", perrors.ErrOffline
	}

	req := llm.Prompt(fmt.Sprintf("You are Buddy, a cool rhythmic rapper. Write a very short, fun, 4-line rhyme for a kid named %s who is feeling %s. Use slang appropriate for a %d year old. Make it super energetic! Language: %s. Output ONLY the 4 lines of lyrics, no other text.",
		name, mood, ageOf(f), f.Language.Name()))
	req.Temperature = 1.0
	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		g.metrics.RecordGeneration("rhyme", metrics.OutcomeFallback)
		return "", fmt.Errorf("rhyme: %w", err)
	}
	g.metrics.RecordGeneration("rhyme", metrics.OutcomeGenerated)
	return strings.TrimSpace(resp.Text), nil
}

// ReflectionPrompt picks a prompt from the translated reflection list.
func (g *Generator) ReflectionPrompt(lang identity.Language) string {
	if p := g.pick(g.tr.Strings(lang, "reflections_screen.prompts")); p != "" {
		return p
	}
	return defaultReflectionPrompt
}
