package activity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/i18n"
	"github.com/p-blackswan/buddy/internal/identity"
	"github.com/p-blackswan/buddy/internal/journal"
	"github.com/p-blackswan/buddy/internal/llm"
	"github.com/p-blackswan/buddy/internal/llm/llmtest"
	"github.com/p-blackswan/buddy/internal/retry"
	"github.com/p-blackswan/buddy/internal/tasks"
)

func facts(lang identity.Language, age int) identity.Facts {
	return identity.Facts{Language: lang, Age: &age, AgeGroup: identity.AgeGroupOf(age)}
}

func resolver() *i18n.Resolver {
	r := i18n.NewResolver()
	r.Install(map[identity.Language]i18n.Dictionary{
		identity.Macedonian: {
			"gratitude_screen":   map[string]any{"fallback_tasks": []any{"Прва", "Втора"}},
			"move_screen":        map[string]any{"fallback_tasks": []any{"Скокај", "Трчај"}},
			"reflections_screen": map[string]any{"prompts": []any{"Што научи денес?"}},
		},
	})
	return r
}

func last(n int) int { return n - 1 }

func newGen(p llm.Provider) *Generator {
	return NewGenerator(p, resolver(), zerolog.Nop(),
		WithRand(last),
		WithRetry(retry.Config{MaxAttempts: 1}),
	)
}

func TestTask_Generated(t *testing.T) {
	fake := &llmtest.Fake{Reply: "  What song makes you dance?\n"}
	g := newGen(fake)

	got := g.Task(context.Background(), tasks.Gratitude, facts(identity.Turkish, 8))
	assert.Equal(t, "What song makes you dance?", got)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "8-year-old")
	assert.Contains(t, prompt, "happy memory", "last topic with the injected picker")
	assert.Contains(t, prompt, "Respond in Turkish.")
}

func TestTask_PromptUsesAgeGroup(t *testing.T) {
	fake := &llmtest.Fake{Reply: "ok"}
	g := newGen(fake)
	g.Task(context.Background(), tasks.Kindness, facts(identity.English, 11))
	assert.Contains(t, fake.Requests()[0].Messages[0].Content, "child aged 10-12")
}

func TestTask_FailureUsesTranslatedPool(t *testing.T) {
	g := newGen(&llmtest.Fake{Err: perrors.NewAPIError("anthropic", 500, "boom")})

	got := g.Task(context.Background(), tasks.Gratitude, facts(identity.Macedonian, 9))
	assert.Equal(t, "Втора", got)

	got = g.Task(context.Background(), tasks.Move, facts(identity.Macedonian, 9))
	assert.Equal(t, "Скокај", got, "move always takes the first entry")
}

func TestTask_MissingPoolUsesBuiltin(t *testing.T) {
	g := newGen(nil)
	assert.True(t, g.Offline())

	got := g.Task(context.Background(), tasks.Kindness, facts(identity.English, 9))
	assert.Contains(t, builtinPools[tasks.Kindness], got)
	assert.Equal(t, builtinPools[tasks.Move][0], g.Task(context.Background(), tasks.Move, facts(identity.Turkish, 9)))
}

func TestTask_EmptyReply(t *testing.T) {
	g := newGen(&llmtest.Fake{Reply: "   "})
	assert.Equal(t, "Take a deep breath.", g.Task(context.Background(), tasks.Calm, facts(identity.English, 12)))
	assert.Equal(t, "Let's move!", g.Task(context.Background(), tasks.Move, facts(identity.Macedonian, 9)), "translated pool is only for failures")
}

func TestTask_RetriesTransientErrors(t *testing.T) {
	fake := &llmtest.Fake{Err: perrors.NewAPIError("anthropic", 503, "busy")}
	g := NewGenerator(fake, resolver(), zerolog.Nop(), WithRetry(retry.Config{MaxAttempts: 3}))
	g.Task(context.Background(), tasks.Move, facts(identity.English, 9))
	assert.Equal(t, 3, fake.Calls())

	fake = &llmtest.Fake{Err: errors.New("bad request")}
	g = NewGenerator(fake, resolver(), zerolog.Nop(), WithRetry(retry.Config{MaxAttempts: 3}))
	g.Task(context.Background(), tasks.Move, facts(identity.English, 9))
	assert.Equal(t, 1, fake.Calls())
}

func TestTaskGenerator_NeverErrors(t *testing.T) {
	g := newGen(&llmtest.Fake{Err: errors.New("down")})
	got, err := g.TaskGenerator(tasks.Calm, facts(identity.English, 9))(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestMoodSupport_Streams(t *testing.T) {
	fake := &llmtest.Fake{Reply: "You are doing great. Keep going!"}
	g := newGen(fake)

	var chunks []string
	for chunk, err := range g.MoodSupport(context.Background(), facts(identity.English, 10), []journal.Mood{journal.Sad, journal.Tired}, "long day") {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, "You are doing great. Keep going!", strings.Join(chunks, ""))
	assert.Contains(t, fake.Requests()[0].Messages[0].Content, "User feels: Sad, Tired")
}

func TestMoodSupport_Fallback(t *testing.T) {
	text, err := llm.Collect(newGen(&llmtest.Fake{Err: errors.New("down")}).MoodSupport(context.Background(), facts(identity.English, 10), []journal.Mood{journal.Happy}, ""))
	require.NoError(t, err)
	assert.Equal(t, SupportFallback, text)

	text, err = llm.Collect(newGen(nil).MoodSupport(context.Background(), facts(identity.English, 10), []journal.Mood{journal.Happy}, ""))
	require.NoError(t, err)
	assert.Equal(t, SupportFallback, text)
}

func TestRhyme(t *testing.T) {
	g := newGen(&llmtest.Fake{Reply: "line1\nline2\nline3\nline4\n"})
	got, err := g.Rhyme(context.Background(), facts(identity.English, 10), "Ana", "happy")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3\nline4", got)

	_, err = g.Rhyme(context.Background(), facts(identity.English, 10), " ", "happy")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	_, err = newGen(nil).Rhyme(context.Background(), facts(identity.English, 10), "Ana", "happy")
	assert.ErrorIs(t, err, perrors.ErrOffline)

	_, err = newGen(&llmtest.Fake{Err: errors.New("down")}).Rhyme(context.Background(), facts(identity.English, 10), "Ana", "happy")
	assert.ErrorContains(t, err, "down")
}

func TestReflectionPrompt(t *testing.T) {
	g := newGen(nil)
	assert.Equal(t, "Што научи денес?", g.ReflectionPrompt(identity.Macedonian))
	assert.Equal(t, defaultReflectionPrompt, g.ReflectionPrompt(identity.English))
}
