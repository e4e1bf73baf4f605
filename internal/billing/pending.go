package billing

import (
	"context"
	"sync"
	"time"
)

// Pending links a checkout the frontend opened to the user who opened it, for
// webhooks that arrive without custom data.
type Pending struct {
	UserID       string    `json:"user_id"`
	CheckoutID   string    `json:"checkout_id,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// PendingStore keeps pending payments by key.
type PendingStore interface {
	Put(ctx context.Context, key string, p Pending) error
	Get(ctx context.Context, key string) (Pending, bool, error)
	Delete(ctx context.Context, key string) error
}

// MemoryPendingStore is an in-process PendingStore.
type MemoryPendingStore struct {
	mu      sync.Mutex
	pending map[string]Pending
}

// NewMemoryPendingStore returns an empty store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{pending: make(map[string]Pending)}
}

// Put implements PendingStore.
func (s *MemoryPendingStore) Put(ctx context.Context, key string, p Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = p
	return nil
}

// Get implements PendingStore.
func (s *MemoryPendingStore) Get(ctx context.Context, key string) (Pending, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	return p, ok, nil
}

// Delete implements PendingStore.
func (s *MemoryPendingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}
