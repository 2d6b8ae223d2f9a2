// internal/tournament/store.go
package tournament

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound indicates an unknown tournament id.
var ErrNotFound = errors.New("tournament not found")

// Store holds every in-memory tournament, keyed by id. All scheduler
// mutation for a tournament runs under the store lock; tournaments are far
// less contended than sessions, so one lock is fine here.
type Store struct {
	mu          sync.Mutex
	tournaments map[uuid.UUID]*Tournament
}

func NewStore() *Store {
	return &Store{tournaments: make(map[uuid.UUID]*Tournament)}
}

// Create registers a pending tournament over the given entries.
func (s *Store) Create(name string, t Type, entries []*Participant) *Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := &Tournament{
		ID:           uuid.New(),
		Name:         name,
		Type:         t,
		Status:       StatusPending,
		Participants: entries,
	}
	s.tournaments[tr.ID] = tr
	return tr
}

// Start activates a tournament and generates round 1.
func (s *Store) Start(id uuid.UUID) (*Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tournaments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := tr.Start(); err != nil {
		return nil, err
	}
	return tr, nil
}

// Advance closes the current round of a tournament.
func (s *Store) Advance(id uuid.UUID) (*Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tournaments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := tr.AdvanceRound(); err != nil {
		return nil, err
	}
	return tr, nil
}

// ReportResult records one game's outcome.
func (s *Store) ReportResult(id, gameID uuid.UUID, result GameResult, forfeit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tournaments[id]
	if !ok {
		return ErrNotFound
	}
	return tr.ReportResult(gameID, result, forfeit)
}

// Get returns the tournament by id.
func (s *Store) Get(id uuid.UUID) (*Tournament, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tournaments[id]
	return tr, ok
}
