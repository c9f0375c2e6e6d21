package app

import (
	"context"
	"errors"
	"fmt"
	"iter"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/install"
	"github.com/p-blackswan/buddy/internal/journal"
	"github.com/p-blackswan/buddy/internal/points"
	"github.com/p-blackswan/buddy/internal/story"
	"github.com/p-blackswan/buddy/internal/tasks"
	"github.com/p-blackswan/buddy/internal/toast"
)

// award is what completing an activity earns.
type award struct {
	category points.Category
	factor   int
	toast    string
}

var awards = map[tasks.Category]award{
	tasks.Gratitude: {points.Gratitude, 1, "+%d points! 🌟"},
	tasks.Move:      {points.Physical, 1, "+%d points! 💪"},
	tasks.Kindness:  {points.Kindness, 1, "+%d points! 💖"},
}

const storyToast = "+%d points! 🎨"

// Toast texts shown when a story or rhyme step fails.
const (
	toastStoryStart  = "Buddy is sleepy. Let's try again!"
	toastStoryTurn   = "Try that sentence again!"
	toastStoryFinish = "Buddy couldn't find the 'The End' sign!"
	toastOffline     = "AI Studio is offline. (Missing API Key)"
	toastRhymeBusy   = "Buddy is a bit busy! Try again."
)

// AddMood records a mood check-in.
func (a *App) AddMood(ctx context.Context, moods []journal.Mood, note string) (journal.MoodEntry, error) {
	if _, err := a.gate(); err != nil {
		return journal.MoodEntry{}, err
	}
	e, err := a.journal.AddMood(ctx, journal.MoodEntry{Moods: moods, Note: note})
	if err != nil {
		return e, err
	}
	a.metrics.RecordJournalEntry(string(journal.KindMood))
	return e, nil
}

// MoodSupport streams the supportive reply to a mood check-in.
func (a *App) MoodSupport(ctx context.Context, moods []journal.Mood, note string) (iter.Seq2[string, error], error) {
	f, err := a.gate()
	if err != nil {
		return nil, err
	}
	return a.generator.MoodSupport(ctx, f, moods, note), nil
}

// AddReflection saves an answer to a reflection prompt.
func (a *App) AddReflection(ctx context.Context, e journal.ReflectionEntry) (journal.ReflectionEntry, error) {
	if _, err := a.gate(); err != nil {
		return journal.ReflectionEntry{}, err
	}
	e, err := a.journal.AddReflection(ctx, e)
	if err != nil {
		return e, err
	}
	a.metrics.RecordJournalEntry(string(journal.KindReflection))
	return e, nil
}

// ReflectionPrompt picks a prompt in the current language.
func (a *App) ReflectionPrompt() string {
	return a.generator.ReflectionPrompt(a.Language())
}

// Timeline is the journal timeline, optionally restricted to kinds.
func (a *App) Timeline(ctx context.Context, kinds ...journal.Kind) (iter.Seq[journal.Entry], error) {
	if _, err := a.gate(); err != nil {
		return nil, err
	}
	return a.journal.TimelineOf(ctx, kinds...), nil
}

// MoodStats summarizes the mood history.
func (a *App) MoodStats(ctx context.Context) ([]journal.MoodStat, error) {
	if _, err := a.gate(); err != nil {
		return nil, err
	}
	return a.journal.MoodStats(ctx), nil
}

// Task returns the active task of cat, generating one when the slot is
// empty or refresh is set.
func (a *App) Task(ctx context.Context, cat tasks.Category, refresh bool) (string, error) {
	f, err := a.gate()
	if err != nil {
		return "", err
	}
	return a.tasks.GetOrRequest(ctx, cat, a.generator.TaskGenerator(cat, f), refresh)
}

// Tasks returns every task slot.
func (a *App) Tasks(ctx context.Context) tasks.Snapshot { return a.tasks.Snapshot(ctx) }

// Completion is the result of CompleteActivity.
type Completion struct {
	Awarded    int                      `json:"awarded"`
	Points     points.Points            `json:"points"`
	Reflection *journal.ReflectionEntry `json:"reflection,omitempty"`
}

// CompleteActivity marks the active task of cat as done: it awards points
// (none for calm), clears the slot and shows the points toast. For gratitude
// a non-empty response is also saved as a gratitude reflection whose prompt
// is the task.
func (a *App) CompleteActivity(ctx context.Context, cat tasks.Category, response string) (Completion, error) {
	if _, err := a.gate(); err != nil {
		return Completion{}, err
	}
	if _, err := tasks.ParseCategory(string(cat)); err != nil {
		return Completion{}, err
	}

	var out Completion
	if cat == tasks.Gratitude && response != "" {
		prompt := ""
		if p := a.tasks.Snapshot(ctx)[cat]; p != nil {
			prompt = *p
		}
		e, err := a.journal.AddReflection(ctx, journal.ReflectionEntry{
			Prompt:   prompt,
			Text:     response,
			Category: journal.CategoryGratitude,
		})
		switch {
		case errors.Is(err, perrors.ErrInvalidInput):
			// whitespace-only answer: nothing to save
		case err != nil:
			return Completion{}, err
		default:
			out.Reflection = &e
			a.metrics.RecordJournalEntry(string(journal.KindReflection))
		}
	}

	if aw, ok := awards[cat]; ok {
		amount := a.perTask * aw.factor
		p, err := a.points.Add(ctx, aw.category, amount)
		if err != nil {
			return Completion{}, err
		}
		out.Awarded = amount
		out.Points = p
		a.metrics.SetPoints(p.Total())
		a.toast.Show(fmt.Sprintf(aw.toast, amount))
		a.logger.Debug().Str("points_category", string(aw.category)).Int("balance", p.Of(aw.category)).Msg("points awarded")
	} else {
		out.Points = a.points.Get(ctx)
	}

	if err := a.tasks.Clear(ctx, cat); err != nil {
		return out, err
	}
	a.metrics.RecordActivity(string(cat))
	a.logger.Info().Str("category", string(cat)).Int("awarded", out.Awarded).Msg("activity completed")
	return out, nil
}

// Rhyme writes a short rhyme. Failures are also shown as a toast.
func (a *App) Rhyme(ctx context.Context, name, mood string) (string, error) {
	f, err := a.gate()
	if err != nil {
		return "", err
	}
	text, err := a.generator.Rhyme(ctx, f, name, mood)
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, perrors.ErrOffline):
		a.toast.Show(toastOffline)
	case errors.Is(err, perrors.ErrInvalidInput):
	default:
		a.toast.Show(a.tr.String(f.Language, "rap_battle_screen.busy_toast", toastRhymeBusy))
	}
	return "", err
}

// StartStory opens a co-writing channel and starts a session with its
// opening sentence, replacing any story in progress.
func (a *App) StartStory(ctx context.Context) (story.Snapshot, error) {
	f, err := a.gate()
	if err != nil {
		return story.Snapshot{}, err
	}
	chat, opening, err := a.writer.Open(ctx, f)
	if err != nil {
		if errors.Is(err, perrors.ErrOffline) {
			a.toast.Show(toastOffline)
		} else {
			a.toast.Show(toastStoryStart)
		}
		return story.Snapshot{}, err
	}
	return a.session.Start(chat, opening), nil
}

// StoryTurn streams Buddy's reply to the user's segment. A failed turn
// shows a toast and leaves the transcript as it was.
func (a *App) StoryTurn(ctx context.Context, user string) (iter.Seq2[string, error], error) {
	if _, err := a.gate(); err != nil {
		return nil, err
	}
	return a.toastOnError(a.session.Turn(ctx, user), toastStoryTurn), nil
}

// FinishStory streams the closing sentence, commits the story and awards
// double creativity points.
func (a *App) FinishStory(ctx context.Context) (iter.Seq2[string, error], error) {
	if _, err := a.gate(); err != nil {
		return nil, err
	}
	done := func(journal.StoryEntry) {
		a.metrics.RecordJournalEntry(string(journal.KindStory))
		a.metrics.RecordStoryFinished()
		amount := a.perTask * 2
		p, err := a.points.Add(ctx, points.Creativity, amount)
		if err != nil {
			a.logger.Warn().Err(err).Msg("could not award story points")
			return
		}
		a.metrics.SetPoints(p.Total())
		a.toast.Show(fmt.Sprintf(storyToast, amount))
	}
	return a.toastOnError(a.session.End(ctx, done), toastStoryFinish), nil
}

// Story returns the story session view.
func (a *App) Story() story.Snapshot { return a.session.Snapshot() }

// ResetStory drops the story in progress without saving it.
func (a *App) ResetStory() { a.session.Reset() }

func (a *App) toastOnError(seq iter.Seq2[string, error], msg string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for chunk, err := range seq {
			if err != nil && !errors.Is(err, perrors.ErrInvalidInput) && !errors.Is(err, context.Canceled) {
				a.toast.Show(msg)
			}
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// Toast returns the visible toast, or nil.
func (a *App) Toast() *toast.Toast { return a.toast.Current() }

// ShowToast displays msg.
func (a *App) ShowToast(msg string) { a.toast.Show(msg) }

// OfferInstall captures an install prompt. Only the first offer is kept.
func (a *App) OfferInstall(p install.Prompt) bool { return a.install.Offer(p) }

// Installable reports whether an install prompt is held.
func (a *App) Installable() bool { return a.install.Installable() }

// TriggerInstall shows the held prompt. ok is false when nothing was held.
func (a *App) TriggerInstall(ctx context.Context) (install.Outcome, bool, error) {
	return a.install.Trigger(ctx)
}
