package tokenstore

import (
	"context"
	"sync"

	"github.com/unitlink/unitlink/internal/models"
)

// MemoryStore keeps the credential in process memory
type MemoryStore struct {
	mu     sync.Mutex
	fields map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fields: make(map[string]string)}
}

// Save implements Store
func (s *MemoryStore) Save(_ context.Context, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = cred.Fields()
	return nil
}

// Load implements Store
func (s *MemoryStore) Load(_ context.Context) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fromFields(s.fields), nil
}

// Clear implements Store
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = make(map[string]string)
	return nil
}

// UpdateField implements Store
func (s *MemoryStore) UpdateField(_ context.Context, name, value string) error {
	if err := checkField(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[name] = value
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error { return nil }
