package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/buddy/internal/app"
	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/metrics"
)

// ProblemDetail follows RFC 7807 for error responses. Route is set when the
// identity gate refused the request and names the screen to show instead.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Route    string `json:"route,omitempty"`
}

func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// classify maps a domain error to a problem.
func classify(err error) ProblemDetail {
	var gate *app.GateError
	var apiErr *perrors.APIError
	var fe *fiber.Error

	switch {
	case errors.As(err, &gate):
		return ProblemDetail{Type: "identity_required", Title: "Identity Required", Status: fiber.StatusConflict, Route: string(gate.Route)}
	case errors.Is(err, perrors.ErrUnknownCategory):
		return ProblemDetail{Type: "unknown_category", Title: "Not Found", Status: fiber.StatusNotFound}
	case errors.Is(err, perrors.ErrInvalidInput):
		return ProblemDetail{Type: "invalid_input", Title: "Bad Request", Status: fiber.StatusBadRequest}
	case errors.Is(err, perrors.ErrNoActiveStory):
		return ProblemDetail{Type: "no_active_story", Title: "Conflict", Status: fiber.StatusConflict}
	case errors.Is(err, perrors.ErrNotFound):
		return ProblemDetail{Type: "not_found", Title: "Not Found", Status: fiber.StatusNotFound}
	case errors.Is(err, perrors.ErrOffline):
		return ProblemDetail{Type: "offline", Title: "Service Unavailable", Status: fiber.StatusServiceUnavailable}
	case errors.Is(err, perrors.ErrRateLimit):
		return ProblemDetail{Type: "rate_limited", Title: "Too Many Requests", Status: fiber.StatusTooManyRequests}
	case errors.Is(err, perrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ProblemDetail{Type: "timeout", Title: "Gateway Timeout", Status: fiber.StatusGatewayTimeout}
	case errors.As(err, &apiErr):
		return ProblemDetail{Type: "generation_failed", Title: "Bad Gateway", Status: fiber.StatusBadGateway}
	case errors.As(err, &fe):
		return ProblemDetail{Type: "http_error", Title: fe.Message, Status: fe.Code}
	}
	return ProblemDetail{Type: "internal_error", Title: "Internal Server Error", Status: fiber.StatusInternalServerError}
}

func errorHandler(logger zerolog.Logger, m *metrics.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		p := classify(err)
		p.Instance = c.Path()
		p.Detail = err.Error()

		if p.Status >= fiber.StatusInternalServerError {
			m.RecordError("server", p.Type)
			logger.Error().
				Err(err).
				Int("status", p.Status).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Str("request_id", requestID(c)).
				Msg("request failed")
		}
		// Don't leak internal details.
		if p.Status == fiber.StatusInternalServerError {
			p.Detail = "An internal error occurred"
		}
		return c.Status(p.Status).JSON(p)
	}
}
