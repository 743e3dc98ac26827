//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_conn.go -package=mocks

// Package chat holds the live state of the chat service: who is connected,
// which rooms exist and who is in them, and how a message reaches every
// member of a room.
//
// Registry, Directory and Router are safe for concurrent use. Each guards its
// own maps with a mutex held for a single operation and never across a
// network send.
package chat

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Conn is the outbound half of a client transport.
type Conn interface {
	// Send queues payload for delivery, giving up when ctx is done.
	Send(ctx context.Context, payload []byte) error
}

// Session binds a registered identity to its connection.
type Session struct {
	ID          uuid.UUID
	Identity    string
	ConnectedAt time.Time
	conn        Conn
}

// Conn returns the transport handle of the session.
func (s *Session) Conn() Conn {
	return s.conn
}

// Registry maps identities to their live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	limits   Limits
	log      *slog.Logger
	now      func() time.Time

	hooksMu sync.RWMutex
	hooks   []func(s *Session)
}

// NewRegistry creates an empty registry validating identities with limits.
func NewRegistry(limits Limits, log *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		limits:   limits.sanitize(),
		log:      log,
		now:      time.Now,
	}
}

// OnUnregister adds a hook run after a session is removed.
// Hooks run outside the registry lock.
func (r *Registry) OnUnregister(hook func(s *Session)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Register creates a session for identity. The identity is trimmed first;
// the returned session carries the normalized form.
func (r *Registry) Register(identity string, conn Conn) (*Session, error) {
	identity, err := r.limits.NormalizeIdentity(identity)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[identity]; exists {
		return nil, ErrDuplicateIdentity
	}
	session := &Session{
		ID:          uuid.New(),
		Identity:    identity,
		ConnectedAt: r.now().UTC(),
		conn:        conn,
	}
	r.sessions[identity] = session
	r.log.Info("Session registered", "identity", identity, "session", session.ID, "active", len(r.sessions))
	return session, nil
}

// Unregister removes the session of identity and evicts it from its rooms.
// It reports whether a session was removed; calling it again is a no-op.
func (r *Registry) Unregister(identity string) bool {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if ok {
		delete(r.sessions, identity)
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.afterUnregister(s, active)
	}
	return ok
}

// UnregisterSession removes s only if it is still the live session of its
// identity, so a stale teardown never drops a newer session.
func (r *Registry) UnregisterSession(s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	current, ok := r.sessions[s.Identity]
	ok = ok && current == s
	if ok {
		delete(r.sessions, s.Identity)
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.afterUnregister(s, active)
	}
	return ok
}

func (r *Registry) afterUnregister(s *Session, active int) {
	r.hooksMu.RLock()
	hooks := slices.Clone(r.hooks)
	r.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(s)
	}
	r.log.Info("Session unregistered", "identity", s.Identity, "session", s.ID, "active", active)
}

// Lookup returns the live session of identity.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// SessionID returns the ID of the live session of identity.
func (r *Registry) SessionID(identity string) (uuid.UUID, bool) {
	s, ok := r.Lookup(identity)
	if !ok {
		return uuid.Nil, false
	}
	return s.ID, true
}

// ListActive returns a sorted snapshot of the registered identities.
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	identities := lo.Keys(r.sessions)
	r.mu.RUnlock()
	slices.Sort(identities)
	return identities
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
