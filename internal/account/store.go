package account

import (
	"fmt"
	"sync"

	"github.com/nathanyu/account-transfer/internal/domain"
)

// Store is the in-memory account directory.
//
// The mutex only protects the id -> account map. Balances are not guarded
// here: they belong to the lock registry handle of each account and are
// mutated by the transfer engine alone.
type Store struct {
	accounts map[string]*domain.Account
	mu       sync.RWMutex
}

// NewStore creates an empty account store
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
	}
}

// Create provisions a new account
func (s *Store) Create(acc *domain.Account) error {
	if acc == nil || acc.ID == "" {
		return fmt.Errorf("create account: %w", domain.ErrInvalidInput)
	}
	if acc.Balance.IsNegative() {
		return fmt.Errorf("create account %s: opening balance %s: %w", acc.ID, acc.Balance, domain.ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acc.ID]; exists {
		return fmt.Errorf("create account %s: %w", acc.ID, domain.ErrAccountExists)
	}
	s.accounts[acc.ID] = acc
	return nil
}

// Get returns the live account for id
func (s *Store) Get(id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", id, domain.ErrAccountNotFound)
	}
	return acc, nil
}

// Len returns the number of provisioned accounts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Clear removes all accounts (for testing purposes)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*domain.Account)
}
