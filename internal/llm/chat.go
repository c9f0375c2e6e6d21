package llm

import (
	"context"
	"iter"
	"strings"
	"sync"
)

// StreamText runs req on p and yields text increments. The sequence ends
// after the last increment, or after yielding a single error. Breaking out of
// the loop cancels the underlying request.
func StreamText(ctx context.Context, p Provider, req CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		out := make(chan Token, 16)
		if err := p.Stream(ctx, req, out); err != nil {
			yield("", err)
			return
		}
		for tok := range out {
			switch {
			case tok.Error != nil:
				yield("", tok.Error)
				return
			case tok.Done:
				return
			case tok.Text != "":
				if !yield(tok.Text, nil) {
					return
				}
			}
		}
	}
}

// Collect consumes seq to completion and returns the concatenated text. The
// first error stops consumption and is returned with the text so far.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

// Chat is a multi-turn channel: a fixed system instruction plus the message
// history. A turn enters the history only once its reply completed.
type Chat struct {
	mu       sync.Mutex
	provider Provider
	system   string
	history  []Message
}

// NewChat opens a channel on p with the given system instruction.
func NewChat(p Provider, system string) *Chat {
	return &Chat{provider: p, system: system}
}

// System returns the system instruction.
func (c *Chat) System() string { return c.system }

// History returns a copy of the completed turns.
func (c *Chat) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}

func (c *Chat) request(text string) CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: text})
	return CompletionRequest{SystemPrompt: c.system, Messages: msgs}
}

func (c *Chat) commit(text, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history,
		Message{Role: RoleUser, Content: text},
		Message{Role: RoleAssistant, Content: reply},
	)
}

// Send sends text and waits for the completed reply.
func (c *Chat) Send(ctx context.Context, text string) (string, error) {
	resp, err := c.provider.Complete(ctx, c.request(text))
	if err != nil {
		return "", err
	}
	c.commit(text, resp.Text)
	return resp.Text, nil
}

// SendStream sends text and yields the reply incrementally. The turn is
// recorded when the sequence is consumed to the end without error.
func (c *Chat) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var b strings.Builder
		for chunk, err := range StreamText(ctx, c.provider, c.request(text)) {
			if err != nil {
				yield("", err)
				return
			}
			b.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}
		c.commit(text, b.String())
	}
}
