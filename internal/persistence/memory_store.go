package persistence

import (
	"bytes"
	"context"
	"sync"
)

// InMemoryStore is a goroutine-safe Store backed by a map. It is not
// durable; use it for tests and for running without a backing store.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[Collection][]byte
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[Collection][]byte)}
}

// Ensure InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) ReadCollection(ctx context.Context, c Collection) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.collections[c]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(payload), nil
}

func (s *InMemoryStore) WriteCollection(ctx context.Context, c Collection, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[c] = bytes.Clone(payload)
	return nil
}
