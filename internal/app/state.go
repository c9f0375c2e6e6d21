package app

import (
	"context"

	"github.com/p-blackswan/buddy/internal/identity"
	"github.com/p-blackswan/buddy/internal/points"
	"github.com/p-blackswan/buddy/internal/story"
	"github.com/p-blackswan/buddy/internal/tasks"
	"github.com/p-blackswan/buddy/internal/toast"
)

// State is everything a screen reads on render.
type State struct {
	Route              Route          `json:"route"`
	Identity           identity.Facts `json:"identity"`
	Points             points.Points  `json:"points"`
	TotalPoints        int            `json:"totalPoints"`
	Tasks              tasks.Snapshot `json:"tasks"`
	Story              story.Snapshot `json:"story"`
	Toast              *toast.Toast   `json:"toast"`
	Installable        bool           `json:"installable"`
	TranslationsLoaded bool           `json:"translationsLoaded"`
	Offline            bool           `json:"offline"`
}

// State returns the current derived state. On the child's birthday the
// first call of the session shows the birthday toast.
func (a *App) State(ctx context.Context) State {
	f := a.Facts()
	if f.IsBirthdayToday {
		a.maybeBirthdayToast(f.Language)
	}

	p := a.points.Get(ctx)
	return State{
		Route:              a.Route(),
		Identity:           f,
		Points:             p,
		TotalPoints:        p.Total(),
		Tasks:              a.tasks.Snapshot(ctx),
		Story:              a.session.Snapshot(),
		Toast:              a.toast.Current(),
		Installable:        a.install.Installable(),
		TranslationsLoaded: a.tr.Loaded(),
		Offline:            a.generator.Offline(),
	}
}

func (a *App) maybeBirthdayToast(lang identity.Language) {
	a.mu.Lock()
	shown := a.birthdayShown
	a.birthdayShown = true
	a.mu.Unlock()
	if !shown {
		a.toast.Show(a.tr.String(lang, "home.birthday_toast", "Happy Birthday! 🥳"))
	}
}
