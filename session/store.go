// Package session keeps per-session view state that outlives a single
// mount: the manual backend override and the cached escalation config.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TFMV/graphview/render"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("session store closed")

// DefaultTTL bounds how long an override survives without being touched.
const DefaultTTL = 24 * time.Hour

// OverrideStore persists manual backend overrides keyed by session id.
type OverrideStore interface {
	Get(ctx context.Context, sessionID string) (render.RenderMode, bool, error)
	Set(ctx context.Context, sessionID string, mode render.RenderMode) error
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

type memoryEntry struct {
	mode    render.RenderMode
	expires time.Time
}

// MemoryStore is an in-process OverrideStore.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	closed  bool
}

// NewMemoryStore creates a store whose entries expire after ttl. A
// non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (render.RenderMode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return render.ModeVector, false, ErrClosed
	}
	e, ok := s.entries[sessionID]
	if !ok {
		return render.ModeVector, false, nil
	}
	if s.now().After(e.expires) {
		delete(s.entries, sessionID)
		return render.ModeVector, false, nil
	}
	return e.mode, true, nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, mode render.RenderMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[sessionID] = memoryEntry{mode: mode, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.entries, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}
