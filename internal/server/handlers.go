package server

import (
	"bufio"
	"iter"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/buddy/internal/app"
	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/identity"
	"github.com/p-blackswan/buddy/internal/install"
	"github.com/p-blackswan/buddy/internal/journal"
	"github.com/p-blackswan/buddy/internal/requestid"
	"github.com/p-blackswan/buddy/internal/tasks"
)

type handlers struct {
	app    *app.App
	logger zerolog.Logger
}

func newHandlers(a *app.App, logger zerolog.Logger) *handlers {
	return &handlers{app: a, logger: logger}
}

// parse decodes an optional JSON body into v.
func parse(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return perrors.Invalid("request body: %v", err)
	}
	return nil
}

// stream writes seq as a chunked text/plain body. The first element is
// pulled before any header is sent, so an error the sequence fails with
// straight away is still reported as a problem response.
func (h *handlers) stream(c *fiber.Ctx, seq iter.Seq2[string, error]) error {
	next, stop := iter.Pull2(seq)
	chunk, err, ok := next()
	if err != nil {
		stop()
		return err
	}

	logger := requestid.Logger(c.UserContext(), h.logger)
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stop()
		for ok {
			if chunk != "" {
				if _, werr := w.WriteString(chunk); werr != nil {
					return
				}
				if werr := w.Flush(); werr != nil {
					logger.Debug().Err(werr).Msg("client went away")
					return
				}
			}
			chunk, err, ok = next()
			if err != nil {
				logger.Warn().Err(err).Msg("stream ended early")
				return
			}
		}
	})
	return nil
}

func (h *handlers) State(c *fiber.Ctx) error {
	return c.JSON(h.app.State(c.UserContext()))
}

func (h *handlers) Reset(c *fiber.Ctx) error {
	if err := h.app.Reset(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type languageRequest struct {
	Language string `json:"language"`
}

func (h *handlers) SetLanguage(c *fiber.Ctx) error {
	var req languageRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	f, err := h.app.SetLanguage(c.UserContext(), req.Language)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"identity": f, "route": h.app.Route()})
}

type birthDateRequest struct {
	BirthDate string `json:"birthDate"`
}

func (h *handlers) SetBirthDate(c *fiber.Ctx) error {
	var req birthDateRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	f, err := h.app.SetBirthDate(c.UserContext(), req.BirthDate)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"identity": f, "route": h.app.Route()})
}

func (h *handlers) Translate(c *fiber.Ctx) error {
	var lang identity.Language
	if raw := c.Query("lang"); raw != "" {
		l, err := identity.ParseLanguage(raw)
		if err != nil {
			return err
		}
		lang = l
	}
	key := c.Query("key")
	var fallback []string
	if fb := c.Query("fallback"); fb != "" {
		fallback = append(fallback, fb)
	}
	return c.JSON(fiber.Map{"key": key, "value": h.app.Translate(lang, key, fallback...)})
}

type moodRequest struct {
	Moods []string `json:"moods"`
	Note  string   `json:"note"`
}

func (r moodRequest) moods() ([]journal.Mood, error) {
	out := make([]journal.Mood, 0, len(r.Moods))
	for _, s := range r.Moods {
		m, err := journal.ParseMood(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (h *handlers) AddMood(c *fiber.Ctx) error {
	var req moodRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	moods, err := req.moods()
	if err != nil {
		return err
	}
	e, err := h.app.AddMood(c.UserContext(), moods, req.Note)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (h *handlers) MoodSupport(c *fiber.Ctx) error {
	var req moodRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	moods, err := req.moods()
	if err != nil {
		return err
	}
	seq, err := h.app.MoodSupport(c.UserContext(), moods, req.Note)
	if err != nil {
		return err
	}
	return h.stream(c, seq)
}

func (h *handlers) MoodStats(c *fiber.Ctx) error {
	stats, err := h.app.MoodStats(c.UserContext())
	if err != nil {
		return err
	}
	if stats == nil {
		stats = []journal.MoodStat{}
	}
	return c.JSON(stats)
}

type reflectionRequest struct {
	Prompt   string `json:"prompt"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

func (h *handlers) AddReflection(c *fiber.Ctx) error {
	var req reflectionRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	e, err := h.app.AddReflection(c.UserContext(), journal.ReflectionEntry{
		Prompt:   req.Prompt,
		Text:     req.Text,
		Category: journal.ReflectionCategory(req.Category),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (h *handlers) ReflectionPrompt(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"prompt": h.app.ReflectionPrompt()})
}

func (h *handlers) Timeline(c *fiber.Ctx) error {
	var kinds []journal.Kind
	for _, k := range splitList(c.Query("kind")) {
		kind := journal.Kind(k)
		if !slices.Contains([]journal.Kind{journal.KindMood, journal.KindReflection, journal.KindStory}, kind) {
			return perrors.Invalid("timeline kind %q is not known", k)
		}
		kinds = append(kinds, kind)
	}
	seq, err := h.app.Timeline(c.UserContext(), kinds...)
	if err != nil {
		return err
	}
	entries := slices.Collect(seq)
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(entries)
}

func (h *handlers) Tasks(c *fiber.Ctx) error {
	return c.JSON(h.app.Tasks(c.UserContext()))
}

func (h *handlers) Task(c *fiber.Ctx) error {
	cat, err := tasks.ParseCategory(c.Params("category"))
	if err != nil {
		return err
	}
	task, err := h.app.Task(c.UserContext(), cat, c.QueryBool("refresh"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"category": cat, "task": task})
}

type completeRequest struct {
	Response string `json:"response"`
}

func (h *handlers) CompleteActivity(c *fiber.Ctx) error {
	cat, err := tasks.ParseCategory(c.Params("category"))
	if err != nil {
		return err
	}
	var req completeRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	done, err := h.app.CompleteActivity(c.UserContext(), cat, req.Response)
	if err != nil {
		return err
	}
	return c.JSON(done)
}

type rhymeRequest struct {
	Name string `json:"name"`
	Mood string `json:"mood"`
}

func (h *handlers) Rhyme(c *fiber.Ctx) error {
	var req rhymeRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	text, err := h.app.Rhyme(c.UserContext(), req.Name, req.Mood)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rhyme": text})
}

func (h *handlers) Story(c *fiber.Ctx) error {
	return c.JSON(h.app.Story())
}

func (h *handlers) ResetStory(c *fiber.Ctx) error {
	h.app.ResetStory()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) StartStory(c *fiber.Ctx) error {
	snap, err := h.app.StartStory(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(snap)
}

type turnRequest struct {
	Text string `json:"text"`
}

func (h *handlers) StoryTurn(c *fiber.Ctx) error {
	var req turnRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	seq, err := h.app.StoryTurn(c.UserContext(), req.Text)
	if err != nil {
		return err
	}
	return h.stream(c, seq)
}

func (h *handlers) FinishStory(c *fiber.Ctx) error {
	seq, err := h.app.FinishStory(c.UserContext())
	if err != nil {
		return err
	}
	return h.stream(c, seq)
}

func (h *handlers) Toast(c *fiber.Ctx) error {
	t := h.app.Toast()
	if t == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(t)
}

type toastRequest struct {
	Message string `json:"message"`
}

func (h *handlers) ShowToast(c *fiber.Ctx) error {
	var req toastRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	if req.Message == "" {
		return perrors.Invalid("toast message is empty")
	}
	h.app.ShowToast(req.Message)
	return c.JSON(h.app.Toast())
}

func (h *handlers) OfferInstall(c *fiber.Ctx) error {
	var p install.Reported
	if err := parse(c, &p); err != nil {
		return err
	}
	captured := h.app.OfferInstall(p)
	return c.JSON(fiber.Map{"captured": captured, "installable": h.app.Installable()})
}

type triggerRequest struct {
	Outcome string `json:"outcome"`
}

func (h *handlers) TriggerInstall(c *fiber.Ctx) error {
	var req triggerRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	if req.Outcome != "" {
		o, err := install.ParseOutcome(req.Outcome)
		if err != nil {
			return err
		}
		ctx = install.WithChoice(ctx, o)
	}
	outcome, shown, err := h.app.TriggerInstall(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"shown": shown, "outcome": outcome})
}
