// Package server exposes the application facade over HTTP for the UI.
package server

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/buddy/internal/app"
	"github.com/p-blackswan/buddy/internal/health"
	"github.com/p-blackswan/buddy/internal/metrics"
	"github.com/p-blackswan/buddy/internal/requestid"
)

// Config holds configuration for the HTTP server.
type Config struct {
	ListenAddr  string
	CORSOrigins string
	LocalesDir  string
	RateLimit   RateLimitConfig
}

// Server is the Buddy Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config Config
}

// New creates and configures the server.
func New(cfg Config, a *app.App, checker *health.Checker, m *metrics.Metrics, logger zerolog.Logger) *Server {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger, m),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    f,
		logger: logger.With().Str("component", "server").Logger(),
		config: cfg,
	}

	s.setupMiddleware(cfg, m)
	s.setupRoutes(newHandlers(a, s.logger), checker, m)
	return s
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

func (s *Server) setupMiddleware(cfg Config, m *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	// Request ID: honour a well-formed incoming ID.
	s.app.Use(func(c *fiber.Ctx) error {
		ctx, id := requestid.Ensure(c.UserContext(), c.Get(requestid.Header))
		c.SetUserContext(ctx)
		c.Set(requestid.Header, id)
		c.Locals("request_id", id)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, " + requestid.Header,
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		}))
	}

	// Request log and metrics. Errors are rendered here so the final status
	// is known.
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		path := c.Path()
		if isProbe(path) {
			return nil
		}
		route := c.Route().Path
		status := c.Response().StatusCode()
		m.RecordRequest(route, strconv.Itoa(status))
		m.ObserveDuration(route, time.Since(start).Seconds())

		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID(c)).
			Msg("api request")
		return nil
	})
}

func (s *Server) setupRoutes(h *handlers, checker *health.Checker, m *metrics.Metrics) {
	s.app.Get("/healthz", health.LivenessHandler())
	s.app.Get("/readyz", checker.ReadinessHandler())

	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	if s.config.LocalesDir != "" {
		s.app.Static("/locales", s.config.LocalesDir)
	}

	v1 := s.app.Group("/api/v1")
	limit := NewRateLimitMiddleware(s.config.RateLimit)

	v1.Get("/state", h.State)
	v1.Post("/reset", h.Reset)

	// Identity
	v1.Put("/identity/language", h.SetLanguage)
	v1.Put("/identity/birth-date", h.SetBirthDate)
	v1.Get("/t", h.Translate)

	// Journal
	v1.Post("/moods", h.AddMood)
	v1.Post("/moods/support", limit, h.MoodSupport)
	v1.Get("/moods/stats", h.MoodStats)
	v1.Post("/reflections", h.AddReflection)
	v1.Get("/reflections/prompt", h.ReflectionPrompt)
	v1.Get("/timeline", h.Timeline)

	// Activities
	v1.Get("/tasks", h.Tasks)
	v1.Get("/tasks/:category", limit, h.Task)
	v1.Post("/tasks/:category/complete", h.CompleteActivity)
	v1.Post("/rhyme", limit, h.Rhyme)

	// Story
	v1.Get("/story", h.Story)
	v1.Delete("/story", h.ResetStory)
	v1.Post("/story/start", limit, h.StartStory)
	v1.Post("/story/turn", limit, h.StoryTurn)
	v1.Post("/story/finish", limit, h.FinishStory)

	// Toast and install prompt
	v1.Get("/toast", h.Toast)
	v1.Post("/toast", h.ShowToast)
	v1.Post("/install/offer", h.OfferInstall)
	v1.Post("/install/trigger", h.TriggerInstall)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok {
		return id
	}
	return ""
}

// splitList parses a comma separated query value.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
