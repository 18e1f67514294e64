package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
)

// SessionStore holds live sessions in memory. Each session has its own lock,
// so answers to different sessions never serialize on each other while
// answers to one session are applied one at a time.
type SessionStore interface {
	// Put registers a new session.
	Put(s *Session)
	// WithSession runs fn while holding the session's lock.
	WithSession(id uuid.UUID, fn func(s *Session) error) error
	// Remove drops a session; later lookups return ErrNotFound.
	Remove(id uuid.UUID)
	// Len returns the number of live sessions.
	Len() int
	// Sweep removes sessions idle for longer than ttl and returns how many.
	Sweep(now time.Time, ttl time.Duration) int
	// StartCleanup sweeps periodically until ctx is cancelled.
	StartCleanup(ctx context.Context, interval, ttl time.Duration)
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
	removed bool
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
	logger   *zap.Logger
}

// NewSessionStore creates an in-memory session store.
func NewSessionStore(logger *zap.Logger) SessionStore {
	return &sessionStore{
		sessions: make(map[uuid.UUID]*sessionEntry),
		logger:   logger.Named("session-store"),
	}
}

func (s *sessionStore) Put(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = &sessionEntry{session: sess}
	s.mu.Unlock()
}

func (s *sessionStore) lookup(id uuid.UUID) (*sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	return e, ok
}

func (s *sessionStore) WithSession(id uuid.UUID, fn func(sess *Session) error) error {
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Removed between lookup and lock.
	if e.removed {
		return fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	return fn(e.session)
}

// Remove only takes the map lock, so it is safe to call from inside
// WithSession.
func (s *sessionStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.removed = true
		delete(s.sessions, id)
	}
}

func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) Sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		// A session being answered is not idle.
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.session.LastActivity) > ttl {
			e.removed = true
			delete(s.sessions, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

func (s *sessionStore) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		s.logger.Info("Session cleanup started",
			zap.Duration("interval", interval),
			zap.Duration("idle_ttl", ttl))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Session cleanup stopped")
				return
			case now := <-ticker.C:
				if n := s.Sweep(now, ttl); n > 0 {
					s.logger.Info("Expired idle sessions",
						zap.Int("expired", n),
						zap.Int("remaining", s.Len()))
				}
			}
		}
	}()
}

var _ SessionStore = (*sessionStore)(nil)
