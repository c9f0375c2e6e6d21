package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/identity"
	"github.com/p-blackswan/buddy/internal/install"
	"github.com/p-blackswan/buddy/internal/journal"
	"github.com/p-blackswan/buddy/internal/kv"
	"github.com/p-blackswan/buddy/internal/llm"
	"github.com/p-blackswan/buddy/internal/llm/llmtest"
	"github.com/p-blackswan/buddy/internal/tasks"
	"github.com/p-blackswan/buddy/internal/toast"
)

var today = time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)

type mapSource map[identity.Language]string

func (m mapSource) Fetch(_ context.Context, lang identity.Language) ([]byte, error) {
	doc, ok := m[lang]
	if !ok {
		return nil, fmt.Errorf("no document for %s", lang)
	}
	return []byte(doc), nil
}

var packs = mapSource{
	identity.English: `{
		"age_selection": {"too_young": "Too little!"},
		"gratitude_screen": {"fallback_tasks": ["Who made you smile?"]},
		"home": {"birthday_toast": "Yay birthday!"}
	}`,
	identity.Macedonian: `{}`,
	identity.Turkish:    `{}`,
}

func newApp(t *testing.T, store kv.Store, provider llm.Provider) *App {
	t.Helper()
	a, err := New(context.Background(), Deps{
		Store:        store,
		Provider:     provider,
		Translations: packs,
		Logger:       zerolog.Nop(),
		Now:          func() time.Time { return today },
		ToastOptions: []toast.Option{toast.WithDuration(time.Hour)},
	})
	require.NoError(t, err)
	select {
	case <-a.TranslationsReady():
	case <-time.After(2 * time.Second):
		t.Fatal("translations never loaded")
	}
	return a
}

func onboard(t *testing.T, a *App, birth string) {
	t.Helper()
	ctx := context.Background()
	_, err := a.SetLanguage(ctx, "en")
	require.NoError(t, err)
	_, err = a.SetBirthDate(ctx, birth)
	require.NoError(t, err)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(context.Background(), Deps{})
	assert.Error(t, err)
}

func TestIdentityGate(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, kv.NewMemoryStore(), nil)

	assert.Equal(t, RouteLanguageSelection, a.Route())
	_, err := a.AddMood(ctx, []journal.Mood{journal.Happy}, "")
	require.ErrorIs(t, err, perrors.ErrIdentityRequired)
	var gate *GateError
	require.True(t, errors.As(err, &gate))
	assert.Equal(t, RouteLanguageSelection, gate.Route)

	_, err = a.SetLanguage(ctx, "MK")
	require.NoError(t, err)
	assert.Equal(t, RouteAgeSelection, a.Route())
	_, err = a.Task(ctx, tasks.Move, false)
	require.True(t, errors.As(err, &gate))
	assert.Equal(t, RouteAgeSelection, gate.Route)

	f, err := a.SetBirthDate(ctx, "2015-06-10")
	require.NoError(t, err)
	require.NotNil(t, f.Age)
	assert.Equal(t, 9, *f.Age)
	assert.Equal(t, identity.Group7to9, f.AgeGroup)
	assert.Equal(t, RouteHome, a.Route())

	_, err = a.AddMood(ctx, []journal.Mood{journal.Happy}, "")
	assert.NoError(t, err)
}

func TestSetLanguage_Unsupported(t *testing.T) {
	a := newApp(t, kv.NewMemoryStore(), nil)
	_, err := a.SetLanguage(context.Background(), "de")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	assert.Equal(t, RouteLanguageSelection, a.Route())
}

func TestSetBirthDate_AgeBounds(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, kv.NewMemoryStore(), nil)
	_, err := a.SetLanguage(ctx, "en")
	require.NoError(t, err)

	_, err = a.SetBirthDate(ctx, "2024-01-01")
	require.ErrorIs(t, err, perrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Too little!")

	_, err = a.SetBirthDate(ctx, "1900-01-01")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	_, err = a.SetBirthDate(ctx, "not a date")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	assert.Equal(t, RouteAgeSelection, a.Route())
}

func TestIdentitySurvivesRestart(t *testing.T) {
	store := kv.NewMemoryStore()
	onboard(t, newApp(t, store, nil), "2015-06-10")

	again := newApp(t, store, nil)
	assert.Equal(t, RouteHome, again.Route())
	assert.Equal(t, identity.English, again.Facts().Language)
}

func TestCompleteActivity_Gratitude(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, kv.NewMemoryStore(), nil)
	onboard(t, a, "2015-06-10")

	task, err := a.Task(ctx, tasks.Gratitude, false)
	require.NoError(t, err)
	assert.Equal(t, "Who made you smile?", task)

	done, err := a.CompleteActivity(ctx, tasks.Gratitude, "my mum")
	require.NoError(t, err)
	assert.Equal(t, 10, done.Awarded)
	assert.Equal(t, 10, done.Points.Gratitude)
	require.NotNil(t, done.Reflection)
	assert.Equal(t, task, done.Reflection.Prompt)
	assert.Equal(t, journal.CategoryGratitude, done.Reflection.Category)

	assert.Nil(t, a.Tasks(ctx)[tasks.Gratitude])
	require.NotNil(t, a.Toast())
	assert.Equal(t, "+10 points! 🌟", a.Toast().Message)

	entries, err := a.Timeline(ctx, journal.KindReflection)
	require.NoError(t, err)
	assert.Len(t, slices.Collect(entries), 1)
}

func TestCompleteActivity_BlankResponseNotSaved(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, kv.NewMemoryStore(), nil)
	onboard(t, a, "2015-06-10")

	done, err := a.CompleteActivity(ctx, tasks.Gratitude, "   ")
	require.NoError(t, err)
	assert.Nil(t, done.Reflection)
	assert.Equal(t, 10, done.Points.Total())
}

func TestCompleteActivity_CalmAwardsNothing(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, kv.NewMemoryStore(), nil)
	onboard(t, a, "2015-06-10")

	_, err := a.Task(ctx, tasks.Calm, false)
	require.NoError(t, err)
	done, err := a.CompleteActivity(ctx, tasks.Calm, "")
	require.NoError(t, err)
	assert.Zero(t, done.Awarded)
	assert.Zero(t, a.Points(ctx).Total())
	assert.Nil(t, a.Toast())
	assert.Nil(t, a.Tasks(ctx)[tasks.Calm])
}

func TestCompleteActivity_UnknownCategory(t *testing.T) {
	a := newApp(t, kv.NewMemoryStore(), nil)
	onboard(t, a, "2015-06-10")
	_, err := a.CompleteActivity(context.Background(), "dance", "")
	assert.ErrorIs(t, err, perrors.ErrUnknownCategory)
}

func TestStoryFlow(t *testing.T) {
	ctx := context.Background()
	fake := &llmtest.Fake{Replies: []string{"A fox found a map.", "It led to a cave.", "They lived happily."}}
	a := newApp(t, kv.NewMemoryStore(), fake)
	onboard(t, a, "2015-06-10")

	snap, err := a.StartStory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A fox found a map."}, snap.Transcript)

	turn, err := a.StoryTurn(ctx, "The fox was brave.")
	require.NoError(t, err)
	reply, err := llm.Collect(turn)
	require.NoError(t, err)
	assert.Equal(t, "It led to a cave.", reply)
	assert.True(t, a.Story().CanFinish)

	end, err := a.FinishStory(ctx)
	require.NoError(t, err)
	final, err := llm.Collect(end)
	require.NoError(t, err)
	assert.Equal(t, "They lived happily.", final)

	assert.Equal(t, 20, a.Points(ctx).Creativity)
	require.NotNil(t, a.Toast())
	assert.Equal(t, "+20 points! 🎨", a.Toast().Message)
	assert.Empty(t, a.Story().Transcript)

	stories, err := a.Timeline(ctx, journal.KindStory)
	require.NoError(t, err)
	all := slices.Collect(stories)
	require.Len(t, all, 1)
	assert.Equal(t, "Adventure "+today.Local().Format("2006-01-02"), all[0].Story.Title)
	assert.Len(t, all[0].Story.Content, 4)
}

func TestStoryTurn_FailureShowsToast(t *testing.T) {
	ctx := context.Background()
	fake := &llmtest.Fake{Replies: []string{"Once."}}
	a := newApp(t, kv.NewMemoryStore(), fake)
	onboard(t, a, "2015-06-10")

	_, err := a.StartStory(ctx)
	require.NoError(t, err)

	fake.Err = errors.New("boom")
	turn, err := a.StoryTurn(ctx, "Hello")
	require.NoError(t, err)
	_, err = llm.Collect(turn)
	require.Error(t, err)
	assert.Equal(t, toastStoryTurn, a.Toast().Message)
	assert.Equal(t, []string{"Once."}, a.Story().Transcript)
}

func TestStartStory_Offline(t *testing.T) {
	a := newApp(t, kv.NewMemoryStore(), nil)
	onboard(t, a, "2015-06-10")

	_, err := a.StartStory(context.Background())
	assert.ErrorIs(t, err, perrors.ErrOffline)
	assert.Equal(t, toastOffline, a.Toast().Message)
}

func TestRhyme(t *testing.T) {
	ctx := context.Background()
	fake := &llmtest.Fake{Reply: "  Yo Mia you shine  "}
	a := newApp(t, kv.NewMemoryStore(), fake)
	onboard(t, a, "2015-06-10")

	text, err := a.Rhyme(ctx, "Mia", "happy")
	require.NoError(t, err)
	assert.Equal(t, "Yo Mia you shine", text)

	fake.Err = errors.New("overloaded")
	_, err = a.Rhyme(ctx, "Mia", "happy")
	require.Error(t, err)
	assert.Equal(t, toastRhymeBusy, a.Toast().Message)
}

func TestState_BirthdayToastOnce(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, kv.NewMemoryStore(), nil)
	onboard(t, a, "2015-05-01")

	st := a.State(ctx)
	assert.True(t, st.Identity.IsBirthdayToday)
	require.NotNil(t, st.Toast)
	assert.Equal(t, "Yay birthday!", st.Toast.Message)
	assert.Equal(t, RouteHome, st.Route)
	assert.True(t, st.Offline)
	assert.True(t, st.TranslationsLoaded)
	assert.Len(t, st.Tasks, 4)

	a.ShowToast("something else")
	st = a.State(ctx)
	assert.Equal(t, "something else", st.Toast.Message)
}

func TestInstall(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, kv.NewMemoryStore(), nil)

	assert.False(t, a.Installable())
	assert.True(t, a.OfferInstall(install.Reported{}))
	assert.False(t, a.OfferInstall(install.Reported{}))
	assert.True(t, a.Installable())

	outcome, ok, err := a.TriggerInstall(install.WithChoice(ctx, install.Accepted))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, install.Accepted, outcome)

	_, ok, err = a.TriggerInstall(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	a := newApp(t, store, nil)
	onboard(t, a, "2015-06-10")
	_, err := a.AddMood(ctx, []journal.Mood{journal.Happy}, "sunny")
	require.NoError(t, err)
	_, err = a.Task(ctx, tasks.Gratitude, false)
	require.NoError(t, err)
	_, err = a.CompleteActivity(ctx, tasks.Move, "")
	require.NoError(t, err)
	a.OfferInstall(install.Reported{})

	require.NoError(t, a.Reset(ctx))
	assert.Equal(t, RouteLanguageSelection, a.Route())
	assert.Zero(t, a.Points(ctx).Total())
	assert.Nil(t, a.Toast())
	assert.False(t, a.Installable())
	assert.True(t, a.TranslationsLoaded(), "translations survive a reset")

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	onboard(t, a, "2015-06-10")
	seq, err := a.Timeline(ctx)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))
	for cat, task := range a.Tasks(ctx) {
		assert.Nil(t, task, cat)
	}
}

func TestReset_FreshStore(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	a := newApp(t, store, nil)

	require.NoError(t, a.Reset(ctx))
	assert.Equal(t, RouteLanguageSelection, a.Route())
	assert.Zero(t, a.Points(ctx).Total())
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// blockingProvider holds every completion until release is closed.
type blockingProvider struct {
	*llmtest.Fake
	started chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.started <- struct{}{}
	<-p.release
	return p.Fake.Complete(ctx, req)
}

func TestReset_DropsTaskInFlight(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	p := &blockingProvider{
		Fake:    &llmtest.Fake{Reply: "Hop like a bunny"},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	a := newApp(t, store, p)
	onboard(t, a, "2015-06-10")

	done := make(chan error, 1)
	go func() {
		_, err := a.Task(ctx, tasks.Move, false)
		done <- err
	}()
	select {
	case <-p.started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never started")
	}

	require.NoError(t, a.Reset(ctx))
	close(p.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("task never returned")
	}

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "task generated before reset was cached")
}
