package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultRetention is how long the memory store keeps a session past its
// expiry, or past its last use when the remote reported no expiry.
const DefaultRetention = 30 * time.Minute

// MemoryStore keeps sessions for a single gateway process. Stale entries are
// swept on writes, at most once per half retention period.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]memoryEntry
	retention time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type memoryEntry struct {
	session  Session
	lastSeen time.Time
}

// NewMemoryStore returns an empty store. A non-positive retention uses
// DefaultRetention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		sessions:  make(map[string]memoryEntry),
		retention: retention,
		now:       time.Now,
	}
}

// Save implements SessionStore.
func (s *MemoryStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sessions[session.Fingerprint] = memoryEntry{session: session, lastSeen: now}
	if now.Sub(s.lastSweep) >= s.retention/2 {
		s.sweepLocked(now)
	}
	return nil
}

// Find implements SessionStore. A hit counts as use of the session.
func (s *MemoryStore) Find(_ context.Context, fingerprint string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[fingerprint]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	entry.lastSeen = s.now()
	s.sessions[fingerprint] = entry
	return entry.session, nil
}

// Delete implements SessionStore.
func (s *MemoryStore) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	delete(s.sessions, fingerprint)
	s.mu.Unlock()
	return nil
}

// Len reports how many sessions are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Has reports whether fingerprint is held.
func (s *MemoryStore) Has(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[fingerprint]
	return ok
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for fingerprint, entry := range s.sessions {
		if entry.stale(now, s.retention) {
			delete(s.sessions, fingerprint)
		}
	}
	s.lastSweep = now
}

func (e memoryEntry) stale(now time.Time, retention time.Duration) bool {
	if e.session.ExpiresAt.IsZero() {
		return now.Sub(e.lastSeen) > retention
	}
	return now.Sub(e.session.ExpiresAt) > retention
}
