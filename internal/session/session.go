// Package session holds the per-client state of the multi-step workflow:
// upload regulations, upload a proposal, run the check, export. State is
// explicit and keyed by session id — nothing about an in-flight workflow
// lives in globals.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"arccs/internal/ingest"
	"arccs/internal/schema"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Session is one client's workflow state. Fields are written step by
// step as the workflow advances; a Reset clears them all.
type Session struct {
	ID        string
	CreatedAt time.Time

	Regulations []schema.Regulation
	Document    *ingest.Document
	Report      *schema.ComplianceReport
}

// Store is an in-memory session registry, safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create starts a new session and returns it.
func (s *Store) Create() *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session for id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// GetOrCreate returns the session for id, or a fresh one when id is
// empty or unknown. Lets stateless clients keep working across resets.
func (s *Store) GetOrCreate(id string) *Session {
	if id != "" {
		if sess, err := s.Get(id); err == nil {
			return sess
		}
	}
	return s.Create()
}

// Update applies fn to the session under the store lock.
func (s *Store) Update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(sess)
	return nil
}

// Reset clears a session's workflow state but keeps the id valid.
func (s *Store) Reset(id string) error {
	return s.Update(id, func(sess *Session) {
		sess.Regulations = nil
		sess.Document = nil
		sess.Report = nil
	})
}

// Delete removes a session entirely.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}
