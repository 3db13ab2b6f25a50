package transferstore

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nathanyu/account-transfer/internal/domain"
)

// Store provides append-only storage for committed transfers
type Store struct {
	byID    map[uuid.UUID]domain.Transfer
	ordered []uuid.UUID
	mu      sync.Mutex
}

// New creates an empty transfer store
func New() *Store {
	return &Store{
		byID: make(map[uuid.UUID]domain.Transfer),
	}
}

// Append records a transfer. Records are never overwritten.
func (s *Store) Append(t domain.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.ID]; exists {
		return fmt.Errorf("append transfer %s: %w", t.ID, domain.ErrDuplicateTransfer)
	}
	s.byID[t.ID] = t
	s.ordered = append(s.ordered, t.ID)
	return nil
}

// Get returns a transfer by id
func (s *Store) Get(id uuid.UUID) (domain.Transfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	return t, ok
}

// LoadAll returns a copy of every transfer in append order
func (s *Store) LoadAll() []domain.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Transfer, 0, len(s.ordered))
	for _, id := range s.ordered {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of recorded transfers
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ordered)
}

// Clear removes all transfers (for testing purposes)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[uuid.UUID]domain.Transfer)
	s.ordered = nil
}
