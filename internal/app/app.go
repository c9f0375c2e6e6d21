// Package app is the facade every screen talks to. It owns the persisted
// collections, derives identity facts, gates activities on identity and
// composes the multi-step operations of the activity screens.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/buddy/internal/activity"
	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/i18n"
	"github.com/p-blackswan/buddy/internal/identity"
	"github.com/p-blackswan/buddy/internal/install"
	"github.com/p-blackswan/buddy/internal/journal"
	"github.com/p-blackswan/buddy/internal/kv"
	"github.com/p-blackswan/buddy/internal/llm"
	"github.com/p-blackswan/buddy/internal/metrics"
	"github.com/p-blackswan/buddy/internal/points"
	"github.com/p-blackswan/buddy/internal/retry"
	"github.com/p-blackswan/buddy/internal/story"
	"github.com/p-blackswan/buddy/internal/tasks"
	"github.com/p-blackswan/buddy/internal/toast"
)

// Route is the screen the identity gate allows.
type Route string

const (
	RouteLanguageSelection Route = "language-selection"
	RouteAgeSelection      Route = "age-selection"
	RouteHome              Route = "home"
)

// GateError is returned by activity operations while identity is
// incomplete. It unwraps to ErrIdentityRequired.
type GateError struct {
	Route Route
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: go to %s", perrors.ErrIdentityRequired, e.Route)
}

func (e *GateError) Unwrap() error { return perrors.ErrIdentityRequired }

// DefaultPointsPerActivity is awarded per completed activity; a finished
// story awards twice as much.
const DefaultPointsPerActivity = 10

// Deps are the collaborators of the facade. Store is required; a nil
// Provider runs offline and a nil Translations source leaves every lookup on
// its fallback.
type Deps struct {
	Store        kv.Store
	Provider     llm.Provider
	Translations i18n.Source
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger

	Now               func() time.Time
	PointsPerActivity int
	StoryMinTurns     int
	ToastOptions      []toast.Option
	ActivityOptions   []activity.Option
	Retry             *retry.Config
}

// App is the facade. Construct it with New.
type App struct {
	store   kv.Store
	now     func() time.Time
	perTask int
	metrics *metrics.Metrics
	logger  zerolog.Logger

	tr        *i18n.Resolver
	loader    *i18n.Loader
	journal   *journal.Store
	points    *points.Ledger
	tasks     *tasks.Cache
	generator *activity.Generator
	writer    *story.Writer
	session   *story.Session
	toast     *toast.Notifier
	install   *install.Capture

	language kv.Value[identity.Language]
	birth    kv.Value[string]

	mu            sync.RWMutex
	lang          identity.Language
	birthDate     *identity.BirthDate
	birthdayShown bool
}

// New builds the facade and runs initialization: identity is read from the
// store before New returns, translations load in the background.
func New(ctx context.Context, d Deps) (*App, error) {
	if d.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.PointsPerActivity <= 0 {
		d.PointsPerActivity = DefaultPointsPerActivity
	}

	logger := d.Logger
	a := &App{
		store:   d.Store,
		now:     d.Now,
		perTask: d.PointsPerActivity,
		metrics: d.Metrics,
		logger:  logger.With().Str("component", "app").Logger(),
		tr:      i18n.NewResolver(),
		journal: journal.NewStore(d.Store, logger, journal.WithClock(d.Now)),
		points:  points.NewLedger(d.Store, logger),
		tasks:   tasks.NewCache(d.Store, logger),
		writer:  story.NewWriter(d.Provider, logger),
		toast:   toast.New(d.ToastOptions...),
		install: install.NewCapture(logger),

		language: kv.NewValue(d.Store, kv.KeyLanguage, func() identity.Language { return "" }, logger),
		birth:    kv.NewValue(d.Store, kv.KeyBirthDate, func() string { return "" }, logger),
	}

	genOpts := []activity.Option{activity.WithMetrics(d.Metrics)}
	if d.Retry != nil {
		genOpts = append(genOpts, activity.WithRetry(*d.Retry))
	}
	a.generator = activity.NewGenerator(d.Provider, a.tr, logger, append(genOpts, d.ActivityOptions...)...)
	a.session = story.NewSession(a.journal, logger, story.WithClock(d.Now), story.WithMinTurns(d.StoryMinTurns))

	if d.Translations != nil {
		a.loader = i18n.NewLoader(d.Translations, logger)
	}

	a.init(ctx)
	a.loadTranslations()
	return a, nil
}

// init reads identity from the store.
func (a *App) init(ctx context.Context) {
	lang := a.language.Get(ctx)
	if lang != "" {
		if parsed, err := identity.ParseLanguage(string(lang)); err == nil {
			lang = parsed
		} else {
			a.logger.Warn().Str("language", string(lang)).Msg("stored language not supported, ignoring")
			lang = ""
		}
	}

	var birth *identity.BirthDate
	if raw := a.birth.Get(ctx); raw != "" {
		if b, err := identity.ParseBirthDate(raw); err == nil {
			birth = &b
		} else {
			a.logger.Warn().Str("birth_date", raw).Msg("stored birth date unreadable, ignoring")
		}
	}

	a.mu.Lock()
	a.lang = lang
	a.birthDate = birth
	a.birthdayShown = false
	a.mu.Unlock()

	a.metrics.SetPoints(a.points.Total(ctx))
	a.logger.Info().Str("language", string(lang)).Bool("birth_date_set", birth != nil).Msg("identity loaded")
}

func (a *App) loadTranslations() {
	if a.loader == nil {
		a.tr.Install(nil)
		a.metrics.SetTranslationsLoaded(false)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := a.loader.Load(ctx, a.tr)
		a.metrics.SetTranslationsLoaded(err == nil)
	}()
}

// TranslationsReady is closed once the first translation load finished.
func (a *App) TranslationsReady() <-chan struct{} { return a.tr.Ready() }

// TranslationsLoaded reports whether language packs are installed.
func (a *App) TranslationsLoaded() bool { return a.tr.Loaded() }

// Offline reports whether text generation is unavailable.
func (a *App) Offline() bool { return a.generator.Offline() }

// Ping checks the store.
func (a *App) Ping(ctx context.Context) error { return a.store.Ping(ctx) }

// Facts derives the identity facts as of now.
func (a *App) Facts() identity.Facts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return identity.Derive(a.lang, a.birthDate, a.now())
}

// Language returns the chosen language, or the default when unset.
func (a *App) Language() identity.Language {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lang == "" {
		return identity.DefaultLanguage
	}
	return a.lang
}

// Route returns the screen the identity gate allows.
func (a *App) Route() Route {
	f := a.Facts()
	switch {
	case f.Language == "":
		return RouteLanguageSelection
	case f.BirthDate == nil:
		return RouteAgeSelection
	default:
		return RouteHome
	}
}

// gate returns the facts, or a GateError while identity is incomplete.
func (a *App) gate() (identity.Facts, error) {
	f := a.Facts()
	if !f.Complete() {
		return f, &GateError{Route: a.Route()}
	}
	return f, nil
}

// SetLanguage stores the UI language.
func (a *App) SetLanguage(ctx context.Context, raw string) (identity.Facts, error) {
	lang, err := identity.ParseLanguage(raw)
	if err != nil {
		return identity.Facts{}, err
	}
	if err := a.language.Set(ctx, lang); err != nil {
		return identity.Facts{}, err
	}
	a.mu.Lock()
	a.lang = lang
	a.mu.Unlock()
	a.logger.Info().Str("language", string(lang)).Msg("language set")
	return a.Facts(), nil
}

// SetBirthDate validates and stores the birth date. Out-of-range ages are
// rejected with the translated age-selection message.
func (a *App) SetBirthDate(ctx context.Context, raw string) (identity.Facts, error) {
	b, err := identity.ParseBirthDate(raw)
	if err != nil {
		return identity.Facts{}, err
	}
	today := a.now()
	if err := b.Validate(today); err != nil {
		lang := a.Language()
		if identity.Age(b, today) < identity.MinAge {
			return identity.Facts{}, perrors.Invalid("%s", a.tr.String(lang, "age_selection.too_young", "You must be at least 3 years old!"))
		}
		return identity.Facts{}, perrors.Invalid("%s", a.tr.String(lang, "age_selection.too_old", "Please enter a valid birth date."))
	}

	if err := a.birth.Set(ctx, b.String()); err != nil {
		return identity.Facts{}, err
	}
	a.mu.Lock()
	a.birthDate = &b
	a.mu.Unlock()
	a.logger.Info().Msg("birth date set")
	return a.Facts(), nil
}

// T resolves a translation key in the current language.
func (a *App) T(key string, fallback ...string) any {
	return a.tr.Resolve(a.Language(), key, fallback...)
}

// Translate resolves key in lang, or the current language when lang is
// empty.
func (a *App) Translate(lang identity.Language, key string, fallback ...string) any {
	if lang == "" {
		lang = a.Language()
	}
	return a.tr.Resolve(lang, key, fallback...)
}

// Points returns the point counters.
func (a *App) Points(ctx context.Context) points.Points { return a.points.Get(ctx) }

// Reset clears the whole namespace, ends any story, clears the toast and the
// install capture, and runs initialization again. Task generations still in
// flight are not cached. Loaded translations are kept.
func (a *App) Reset(ctx context.Context) error {
	a.tasks.Invalidate()
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	a.session.Reset()
	a.toast.Clear()
	a.install.Reset()
	a.init(ctx)
	a.logger.Info().Msg("app reset")
	return nil
}
