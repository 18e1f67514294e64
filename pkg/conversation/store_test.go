package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

func newTestSession(lastActivity time.Time) *Session {
	return newSession("client", &models.ProcessedFileData{
		Structure: &models.StructureAnalysis{},
		Grid:      models.GridFromStrings([][]string{{"a"}}),
	}, lastActivity)
}

func TestSessionStore_WithSession(t *testing.T) {
	store := NewSessionStore(zap.NewNop())
	s := newTestSession(time.Now())
	store.Put(s)

	var seen uuid.UUID
	err := store.WithSession(s.ID, func(got *Session) error {
		seen = got.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, s.ID, seen)

	boom := errors.New("boom")
	err = store.WithSession(s.ID, func(*Session) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = store.WithSession(uuid.New(), func(*Session) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionStore_RemoveInsideWithSession(t *testing.T) {
	store := NewSessionStore(zap.NewNop())
	s := newTestSession(time.Now())
	store.Put(s)

	err := store.WithSession(s.ID, func(got *Session) error {
		store.Remove(got.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	err = store.WithSession(s.ID, func(*Session) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionStore_Sweep(t *testing.T) {
	store := NewSessionStore(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	idle := newTestSession(now.Add(-3 * time.Hour))
	fresh := newTestSession(now.Add(-10 * time.Minute))
	store.Put(idle)
	store.Put(fresh)

	removed := store.Sweep(now, 2*time.Hour)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
	assert.ErrorIs(t, store.WithSession(idle.ID, func(*Session) error { return nil }), apperrors.ErrNotFound)
	assert.NoError(t, store.WithSession(fresh.ID, func(*Session) error { return nil }))
}

func TestSessionStore_SweepSkipsBusySessions(t *testing.T) {
	store := NewSessionStore(zap.NewNop())
	now := time.Now()
	s := newTestSession(now.Add(-5 * time.Hour))
	store.Put(s)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.WithSession(s.ID, func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	assert.Equal(t, 0, store.Sweep(now, time.Hour), "a session being answered is not idle")
	close(release)
	<-done

	assert.Equal(t, 1, store.Sweep(now, time.Hour))
}

func TestSessionStore_SerializesPerSession(t *testing.T) {
	store := NewSessionStore(zap.NewNop())
	a := newTestSession(time.Now())
	b := newTestSession(time.Now())
	store.Put(a)
	store.Put(b)

	var wg sync.WaitGroup
	for range 50 {
		for _, id := range []uuid.UUID{a.ID, b.ID} {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_ = store.WithSession(id, func(s *Session) error {
					// Unsynchronized on purpose: the store lock must serialize this.
					s.Superseded = append(s.Superseded, uuid.New())
					return nil
				})
			}(id)
		}
	}
	wg.Wait()

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		require.NoError(t, store.WithSession(id, func(s *Session) error {
			assert.Len(t, s.Superseded, 50)
			return nil
		}))
	}
}

func TestSessionStore_StartCleanup(t *testing.T) {
	store := NewSessionStore(zap.NewNop())
	store.Put(newTestSession(time.Now().Add(-time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartCleanup(ctx, 10*time.Millisecond, time.Minute)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}
