// Package ratelimit implements per-identity sliding window admission control
// for chat messages.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	defaultLimit  = 5
	defaultWindow = 10 * time.Second
)

// Option configures a Window.
type Option func(*Window)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// Window admits at most limit messages per identity within any trailing
// window. Only accepted attempts are recorded.
type Window struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

// New creates a limiter admitting limit messages per window.
// Non-positive values fall back to 5 messages per 10 seconds.
func New(limit int, window time.Duration, opts ...Option) *Window {
	if limit <= 0 {
		limit = defaultLimit
	}
	if window <= 0 {
		window = defaultWindow
	}
	w := &Window{
		entries: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Allow reports whether identity may send a message now and, if so,
// records the attempt. It never returns an error; the signature leaves
// room for limiters backed by a remote store.
func (w *Window) Allow(_ context.Context, identity string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	recent := prune(w.entries[identity], now.Add(-w.window))
	if len(recent) >= w.limit {
		return false, nil
	}
	w.entries[identity] = append(recent, now)
	return true, nil
}

// Remaining returns how many messages identity may still send in the
// current window.
func (w *Window) Remaining(identity string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	recent := prune(w.entries[identity], w.now().Add(-w.window))
	return max(w.limit-len(recent), 0)
}

// Sweep forgets identities whose recorded attempts have all expired and
// returns how many were dropped.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	dropped := 0
	for identity, times := range w.entries {
		if len(prune(times, cutoff)) == 0 {
			delete(w.entries, identity)
			dropped++
		}
	}
	return dropped
}

// Run sweeps every interval until ctx is done.
func (w *Window) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = w.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// prune drops timestamps at or before cutoff. times is ordered oldest first.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
