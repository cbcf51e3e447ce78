package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps principals in a map. Contents are lost on restart.
type MemoryStore struct {
	principals map[string]Principal
	mu         sync.RWMutex
}

// NewMemoryStore creates an empty in-memory principal store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]Principal),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.principals[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	return &p, nil
}

func (m *MemoryStore) Put(ctx context.Context, p Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.principals[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrPrincipalExists, p.ID)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	m.principals[p.ID] = p

	log.Debugw("Stored principal", "id", p.ID, "role", p.Role, "count", len(m.principals))
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.principals[id]
	return exists, nil
}

func (m *MemoryStore) UpdateCredential(ctx context.Context, id string, credentialHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.principals[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	p.CredentialHash = credentialHash
	p.UpdatedAt = time.Now().UTC()
	m.principals[id] = p
	return nil
}

var _ PrincipalStore = (*MemoryStore)(nil)
