package users

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process account registry for development servers
// and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	emails map[string]struct{}
}

func NewMemoryStore(emails ...string) *MemoryStore {
	s := &MemoryStore{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		s.Add(e)
	}
	return s
}

// Add registers email.
func (s *MemoryStore) Add(email string) {
	s.mu.Lock()
	s.emails[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	s.mu.Unlock()
}

func (s *MemoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok, nil
}
