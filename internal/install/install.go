// Package install captures the one-shot "app can be installed" signal and
// forwards it exactly once when the user asks to install.
package install

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buddy/internal/errors"
)

// Outcome is the user's answer to the install prompt.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Dismissed Outcome = "dismissed"
)

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case Accepted, Dismissed:
		return Outcome(s), nil
	}
	return "", perrors.Invalid("install outcome %q is not known", s)
}

// Prompt is a captured install signal. Prompt shows it and waits for the
// user's choice.
type Prompt interface {
	Prompt(ctx context.Context) (Outcome, error)
}

// PromptFunc adapts a function to Prompt.
type PromptFunc func(ctx context.Context) (Outcome, error)

func (f PromptFunc) Prompt(ctx context.Context) (Outcome, error) { return f(ctx) }

// Capture is a single-slot holder for a Prompt.
type Capture struct {
	slot   chan Prompt
	logger zerolog.Logger
}

// NewCapture creates an empty capture.
func NewCapture(logger zerolog.Logger) *Capture {
	return &Capture{
		slot:   make(chan Prompt, 1),
		logger: logger.With().Str("component", "install").Logger(),
	}
}

// Offer stores p unless a prompt is already held. It reports whether p was
// kept.
func (c *Capture) Offer(p Prompt) bool {
	select {
	case c.slot <- p:
		c.logger.Debug().Msg("install prompt captured")
		return true
	default:
		return false
	}
}

// Installable reports whether a prompt is held.
func (c *Capture) Installable() bool {
	return len(c.slot) > 0
}

// Trigger takes the held prompt, shows it and returns the user's choice. The
// prompt is discarded whatever the outcome. ok is false when no prompt was
// held.
func (c *Capture) Trigger(ctx context.Context) (outcome Outcome, ok bool, err error) {
	var p Prompt
	select {
	case p = <-c.slot:
	default:
		return "", false, nil
	}

	outcome, err = p.Prompt(ctx)
	if err != nil {
		return "", true, fmt.Errorf("install prompt: %w", err)
	}
	c.logger.Info().Str("outcome", string(outcome)).Msg("install prompt answered")
	return outcome, true, nil
}

// Reset drops any held prompt.
func (c *Capture) Reset() {
	select {
	case <-c.slot:
	default:
	}
}

type choiceKey struct{}

// WithChoice attaches the user's choice to ctx, for prompts answered by the
// caller of Trigger.
func WithChoice(ctx context.Context, o Outcome) context.Context {
	return context.WithValue(ctx, choiceKey{}, o)
}

// Reported is a prompt shown by a remote client. Its outcome is the choice
// attached to the Trigger context, Dismissed if none.
type Reported struct {
	Platforms []string `json:"platforms,omitempty"`
}

func (Reported) Prompt(ctx context.Context) (Outcome, error) {
	if o, ok := ctx.Value(choiceKey{}).(Outcome); ok {
		return o, nil
	}
	return Dismissed, nil
}
