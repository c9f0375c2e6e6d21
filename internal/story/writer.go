package story

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/identity"
	"github.com/p-blackswan/buddy/internal/llm"
	"github.com/p-blackswan/buddy/internal/retry"
)

const (
	openingPrompt   = "Start a new story. Give me just one first sentence."
	openingFallback = "Once upon a time..."
)

// Writer opens co-writing channels on a provider.
type Writer struct {
	provider llm.Provider
	retry    retry.Config
	logger   zerolog.Logger
}

// NewWriter creates a writer. provider may be nil, in which case every
// Open fails with ErrOffline.
func NewWriter(provider llm.Provider, logger zerolog.Logger) *Writer {
	return &Writer{
		provider: provider,
		retry:    retry.DefaultConfig(),
		logger:   logger.With().Str("component", "story").Logger(),
	}
}

// SystemInstruction is the co-writer persona for a child of the given facts.
func SystemInstruction(f identity.Facts) string {
	age := identity.MinAge
	if f.Age != nil {
		age = *f.Age
	}
	return fmt.Sprintf("You are a creative co-writer for a %d-year-old child. Your name is Buddy. Start a new story one sentence at a time. Use simple, clear %s. Never break character.",
		age, f.Language.Name())
}

// Open creates a channel and asks it for the opening sentence, retrying
// transient failures. An empty reply becomes "Once upon a time...".
func (w *Writer) Open(ctx context.Context, f identity.Facts) (*llm.Chat, string, error) {
	if w.provider == nil {
		return nil, "", perrors.ErrOffline
	}
	chat := llm.NewChat(w.provider, SystemInstruction(f))
	opening, err := retry.Value(ctx, w.retry, func(ctx context.Context) (string, error) {
		return chat.Send(ctx, openingPrompt)
	})
	if err != nil {
		w.logger.Warn().Err(err).Msg("could not open story channel")
		return nil, "", fmt.Errorf("open story: %w", err)
	}
	opening = strings.TrimSpace(opening)
	if opening == "" {
		opening = openingFallback
	}
	return chat, opening, nil
}
