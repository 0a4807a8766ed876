// Package history records completed compliance runs to a JSON file,
// newest first, capped at the most recent 50 entries.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"arccs/internal/schema"
)

// maxEntries caps the persisted history length.
const maxEntries = 50

// ErrNotFound is returned for unknown entry ids.
var ErrNotFound = errors.New("history entry not found")

// Entry is one recorded compliance run.
type Entry struct {
	ID              int                      `json:"id"`
	Timestamp       time.Time                `json:"timestamp"`
	DocumentName    string                   `json:"document_name"`
	RegulationCount int                      `json:"regulation_count"`
	OverallStatus   string                   `json:"overall_status"`
	Summary         schema.Summary           `json:"summary"`
	Report          *schema.ComplianceReport `json:"report,omitempty"`
}

// Store persists entries to one JSON file, safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore returns a Store writing to path. The file is created on the
// first Add.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Add prepends an entry, assigns it an id, and persists the file.
func (s *Store) Add(entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return Entry{}, err
	}

	entry.ID = nextID(entries)
	entry.Timestamp = s.now()
	entries = append([]Entry{entry}, entries...)
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	if err := s.save(entries); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List returns all entries, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the entry with the given id.
func (s *Store) Get(id int) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// Delete removes the entry with the given id.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.ID == id {
			return s.save(append(entries[:i], entries[i+1:]...))
		}
	}
	return ErrNotFound
}

// Clear removes all entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save([]Entry{})
}

func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *Store) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// nextID returns one more than the highest id ever used, so deleting an
// entry never recycles its id.
func nextID(entries []Entry) int {
	max := 0
	for _, e := range entries {
		if e.ID > max {
			max = e.ID
		}
	}
	return max + 1
}
