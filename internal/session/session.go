package session

import (
	"sync"

	"github.com/tubefetch/bot/internal/extract"
)

// Step marks which wizard prompt the user last saw.
type Step int

const (
	StepAwaitingFormat Step = iota
	StepAwaitingQuality
	StepFetching
)

// Session is the ephemeral per-user state for the format/quality selection
// wizard. Exactly one session exists per user; a new valid link overwrites it.
type Session struct {
	Link      string
	Format    string
	Quality   string
	Meta      extract.Metadata
	RequestID string
	Step      Step
}

// Store provides per-user session state with last-write-wins semantics.
type Store interface {
	Get(userID int64) (Session, bool)
	// Update merges fields into the user's session (creating one if absent) by
	// applying mutate to the current value.
	Update(userID int64, mutate func(*Session))
	Clear(userID int64)
}

// NewMemoryStore returns a Store backed by an in-memory map.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

// MemoryStore implements Store for the single-process deployment and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// Get retrieves the session for a user.
func (s *MemoryStore) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	return sess, ok
}

// Update applies mutate to the user's current session, creating one if needed.
func (s *MemoryStore) Update(userID int64, mutate func(*Session)) {
	s.mu.Lock()
	sess := s.sessions[userID]
	mutate(&sess)
	s.sessions[userID] = sess
	s.mu.Unlock()
}

// Clear removes the user's session.
func (s *MemoryStore) Clear(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

var _ Store = (*MemoryStore)(nil)
