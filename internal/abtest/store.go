package abtest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// Store is the durable registry of experiments, keyed by test ID. Concluded
// tests stay readable for audit but drop out of the active set.
type Store interface {
	Save(ctx context.Context, t *Test) error
	Get(ctx context.Context, id uuid.UUID) (*Test, error)
	ListActive(ctx context.Context) ([]Test, error)
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	tests map[uuid.UUID]Test
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tests: make(map[uuid.UUID]Test)}
}

func (s *MemoryStore) Save(ctx context.Context, t *Test) error {
	s.mu.Lock()
	s.tests[t.ID] = *t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Test
	for _, t := range s.tests {
		if t.Status == StatusRunning {
			out = append(out, t)
		}
	}
	return out, nil
}
