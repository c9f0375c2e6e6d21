// Package story drives a co-written story: a transient session holding the
// open chat channel and the transcript of finalized segments, committed to
// the journal as one entry when the story is finished.
package story

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/journal"
	"github.com/p-blackswan/buddy/internal/llm"
)

// State is the lifecycle position of a session.
type State string

const (
	Idle       State = "idle"
	Started    State = "started"
	InProgress State = "in_progress"
)

// MinTurns is the default transcript length from which finishing is
// offered.
const MinTurns = 3

// FinishPrompt asks the channel for the closing segment.
const FinishPrompt = "Finish the story with one happy sentence."

// Committer stores a finished story.
type Committer interface {
	AddStory(ctx context.Context, e journal.StoryEntry) (journal.StoryEntry, error)
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID         string   `json:"id,omitempty"`
	State      State    `json:"state"`
	Transcript []string `json:"transcript"`
	CanFinish  bool     `json:"canFinish"`
}

// Session is the story state machine. The zero value is not usable; call
// NewSession.
type Session struct {
	mu         sync.Mutex
	state      State
	id         uuid.UUID
	chat       *llm.Chat
	transcript []string

	committer Committer
	minTurns  int
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for story titles and dates.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithMinTurns overrides MinTurns.
func WithMinTurns(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.minTurns = n
		}
	}
}

// NewSession creates an idle session committing to c.
func NewSession(c Committer, logger zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		state:     Idle,
		committer: c,
		minTurns:  MinTurns,
		now:       time.Now,
		logger:    logger.With().Str("component", "story").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a session on chat with the AI-authored opening segment. A
// session already in progress is replaced and its transcript dropped.
func (s *Session) Start(chat *llm.Chat, opening string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		s.logger.Info().Str("session", s.id.String()).Int("segments", len(s.transcript)).Msg("replacing unfinished story")
	}
	s.id = uuid.New()
	s.chat = chat
	s.transcript = []string{opening}
	s.state = Started
	s.logger.Debug().Str("session", s.id.String()).Msg("story started")
	return s.snapshotLocked()
}

// Continue appends a user segment and the AI reply, in that order.
func (s *Session) Continue(user, ai string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continueLocked(uuid.Nil, user, ai)
}

func (s *Session) continueLocked(id uuid.UUID, user, ai string) error {
	if s.state == Idle || (id != uuid.Nil && id != s.id) {
		return perrors.ErrNoActiveStory
	}
	s.transcript = append(s.transcript, user, ai)
	s.state = InProgress
	return nil
}

// Finish appends the closing segment, commits the transcript as a story
// entry and returns the session to Idle. If the commit fails the session is
// left as it was.
func (s *Session) Finish(ctx context.Context, final string) (journal.StoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(ctx, uuid.Nil, final)
}

func (s *Session) finishLocked(ctx context.Context, id uuid.UUID, final string) (journal.StoryEntry, error) {
	if s.state == Idle || (id != uuid.Nil && id != s.id) {
		return journal.StoryEntry{}, perrors.ErrNoActiveStory
	}

	now := s.now()
	content := make([]string, 0, len(s.transcript)+1)
	content = append(content, s.transcript...)
	content = append(content, final)

	entry, err := s.committer.AddStory(ctx, journal.StoryEntry{
		Title:   "Adventure " + now.Local().Format("2006-01-02"),
		Content: content,
		Date:    now,
	})
	if err != nil {
		return entry, fmt.Errorf("commit story: %w", err)
	}

	s.logger.Info().Str("session", s.id.String()).Int("segments", len(content)).Msg("story finished")
	s.resetLocked()
	return entry, nil
}

// Reset drops any session without committing it.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.state = Idle
	s.id = uuid.Nil
	s.chat = nil
	s.transcript = nil
}

// Turn sends the user's segment on the open channel and yields the reply
// incrementally. When the reply completes, both segments are appended.
// A failed or abandoned turn leaves the transcript untouched.
func (s *Session) Turn(ctx context.Context, user string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		user = strings.TrimSpace(user)
		if user == "" {
			yield("", perrors.Invalid("story turn is empty"))
			return
		}
		id, chat, err := s.current()
		if err != nil {
			yield("", err)
			return
		}

		reply, ok := relay(chat.SendStream(ctx, user), yield)
		if !ok {
			return
		}

		s.mu.Lock()
		err = s.continueLocked(id, user, strings.TrimSpace(reply))
		s.mu.Unlock()
		if err != nil {
			yield("", err)
		}
	}
}

// End asks the channel for the closing segment, yields it incrementally and
// then finishes the session. The committed entry is passed to done.
func (s *Session) End(ctx context.Context, done func(journal.StoryEntry)) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		id, chat, err := s.current()
		if err != nil {
			yield("", err)
			return
		}

		final, ok := relay(chat.SendStream(ctx, FinishPrompt), yield)
		if !ok {
			return
		}

		s.mu.Lock()
		entry, err := s.finishLocked(ctx, id, strings.TrimSpace(final))
		s.mu.Unlock()
		if err != nil {
			yield("", err)
			return
		}
		if done != nil {
			done(entry)
		}
	}
}

// relay forwards seq to yield and returns the concatenation. ok is false if
// seq failed or the consumer stopped early.
func relay(seq iter.Seq2[string, error], yield func(string, error) bool) (string, bool) {
	var b strings.Builder
	for chunk, err := range seq {
		if err != nil {
			yield("", err)
			return "", false
		}
		b.WriteString(chunk)
		if !yield(chunk, nil) {
			return "", false
		}
	}
	return b.String(), true
}

func (s *Session) current() (uuid.UUID, *llm.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle || s.chat == nil {
		return uuid.Nil, nil, perrors.ErrNoActiveStory
	}
	return s.id, s.chat, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the finalized segments.
func (s *Session) Transcript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transcript...)
}

// CanFinish reports whether the transcript reached the minimum length.
// Finish does not enforce it.
func (s *Session) CanFinish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canFinishLocked()
}

func (s *Session) canFinishLocked() bool {
	return s.state != Idle && len(s.transcript) >= s.minTurns
}

// Snapshot returns a view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      s.state,
		Transcript: append([]string{}, s.transcript...),
		CanFinish:  s.canFinishLocked(),
	}
	if s.id != uuid.Nil {
		snap.ID = s.id.String()
	}
	return snap
}
