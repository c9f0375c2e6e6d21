// Package toast holds the single transient message shown on top of every
// screen.
package toast

import (
	"sync"
	"time"
)

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 3 * time.Second

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the part of *time.Timer the notifier uses.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Toast is a visible message.
type Toast struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Notifier keeps at most one toast. Show replaces the current message and
// restarts its expiry.
type Notifier struct {
	mu       sync.Mutex
	clock    Clock
	duration time.Duration
	current  *Toast
	timer    Timer
	seq      uint64
	onChange func(*Toast)
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// WithDuration overrides DefaultDuration.
func WithDuration(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.duration = d
		}
	}
}

// OnChange registers fn, called with the new toast or nil after every
// change. fn runs without the notifier lock held.
func OnChange(fn func(*Toast)) Option {
	return func(n *Notifier) { n.onChange = fn }
}

// New creates an empty notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{clock: realClock{}, duration: DefaultDuration}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Show displays msg for the configured duration from now.
func (n *Notifier) Show(msg string) {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.seq++
	seq := n.seq
	t := &Toast{Message: msg, ExpiresAt: n.clock.Now().Add(n.duration)}
	n.current = t
	n.timer = n.clock.AfterFunc(n.duration, func() { n.expire(seq) })
	n.mu.Unlock()

	n.notify(t)
}

// expire clears the toast shown by call seq, unless a later Show replaced it.
func (n *Notifier) expire(seq uint64) {
	n.mu.Lock()
	if seq != n.seq || n.current == nil {
		n.mu.Unlock()
		return
	}
	n.current = nil
	n.timer = nil
	n.mu.Unlock()

	n.notify(nil)
}

// Clear hides the current toast.
func (n *Notifier) Clear() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.seq++
	had := n.current != nil
	n.current = nil
	n.mu.Unlock()

	if had {
		n.notify(nil)
	}
}

// Current returns the visible toast, or nil.
func (n *Notifier) Current() *Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil || !n.clock.Now().Before(n.current.ExpiresAt) {
		return nil
	}
	t := *n.current
	return &t
}

func (n *Notifier) notify(t *Toast) {
	if n.onChange == nil {
		return
	}
	if t != nil {
		c := *t
		t = &c
	}
	n.onChange(t)
}
