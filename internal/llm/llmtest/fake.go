// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/p-blackswan/buddy/internal/llm"
)

// Fake replies with Reply, or the next element of Replies when set. Streamed
// replies are split on spaces, keeping the separators.
type Fake struct {
	mu       sync.Mutex
	Reply    string
	Replies  []string
	Err      error
	requests []llm.CompletionRequest
}

func (f *Fake) next(req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Replies) > 0 {
		r := f.Replies[0]
		f.Replies = f.Replies[1:]
		return r, nil
	}
	return f.Reply, nil
}

func (f *Fake) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	text, err := f.next(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Text: text, StopReason: llm.StopReasonEndTurn}, nil
}

func (f *Fake) Stream(ctx context.Context, req llm.CompletionRequest, out chan<- llm.Token) error {
	text, err := f.next(req)
	if err != nil {
		close(out)
		return err
	}
	go func() {
		defer close(out)
		for _, chunk := range strings.SplitAfter(text, " ") {
			select {
			case out <- llm.Token{Text: chunk}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- llm.Token{Done: true}:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (f *Fake) ModelID() string { return "fake" }

// Requests returns every request received so far.
func (f *Fake) Requests() []llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.CompletionRequest(nil), f.requests...)
}

// Calls returns the number of requests received.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
