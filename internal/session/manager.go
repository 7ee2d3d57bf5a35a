package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/wayfinder/internal/feedback"
)

// ErrManagerClosed is returned by [Manager.Get] after [Manager.Shutdown].
var ErrManagerClosed = errors.New("session: manager closed")

// Info holds metadata about a live session.
type Info struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Surface   Surface   `json:"surface"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionKey struct {
	userID  string
	surface Surface
}

type entry struct {
	session *Session
	info    Info
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	Services Services
	Config   Config

	// Feedback returns the channel a new session reports through. When nil
	// sessions are silent.
	Feedback func(userID string, surface Surface) feedback.Channel
}

// Manager creates sessions on demand and keeps at most one per rider and
// surface. All exported methods are safe for concurrent use.
type Manager struct {
	svc      Services
	feedback func(userID string, surface Surface) feedback.Channel

	mu       sync.Mutex
	cfg      Config
	sessions map[sessionKey]entry
	closed   bool
}

// NewManager creates a [Manager] with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		svc:      cfg.Services,
		feedback: cfg.Feedback,
		cfg:      cfg.Config.WithDefaults(),
		sessions: make(map[sessionKey]entry),
	}
}

// Get returns the rider's session on surface, creating it on first use.
func (m *Manager) Get(userID string, surface Surface) (*Session, error) {
	if _, err := ParseSurface(string(surface)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	key := sessionKey{userID: userID, surface: surface}
	if e, ok := m.sessions[key]; ok {
		return e.session, nil
	}

	var fb feedback.Channel
	if m.feedback != nil {
		fb = m.feedback(userID, surface)
	}
	id := uuid.NewString()
	s := newSession(id, userID, surface, m.svc, m.cfg, fb)
	m.sessions[key] = entry{
		session: s,
		info:    Info{ID: id, UserID: userID, Surface: surface, CreatedAt: time.Now().UTC()},
	}
	slog.Info("session: created", "session_id", id, "user_id", userID, "surface", surface)
	return s, nil
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(userID string, surface Surface) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionKey{userID: userID, surface: surface}]
	return e.session, ok
}

// List returns metadata about every live session.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.info)
	}
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close cancels and forgets the rider's session on surface. It reports
// whether a session existed.
func (m *Manager) Close(userID string, surface Surface) bool {
	key := sessionKey{userID: userID, surface: surface}
	m.mu.Lock()
	e, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.session.Close()
	slog.Info("session: closed", "session_id", e.info.ID, "user_id", userID, "surface", surface)
	return true
}

// SetConfig applies cfg to new sessions and to every live session. A cycle
// already in flight keeps the timeouts it started with.
func (m *Manager) SetConfig(cfg Config) {
	cfg = cfg.WithDefaults()
	m.mu.Lock()
	m.cfg = cfg
	live := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		live = append(live, e.session)
	}
	m.mu.Unlock()
	for _, s := range live {
		s.setConfig(cfg)
	}
}

// Shutdown closes every session and rejects further [Manager.Get] calls.
// It returns ctx.Err() if ctx ends before all cycles have finished.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := m.sessions
	m.sessions = make(map[sessionKey]entry)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, e := range live {
			wg.Go(e.session.Close)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("session: manager shut down", "sessions", len(live))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
