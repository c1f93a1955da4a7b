package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

// ResultStore keeps results in process memory. Used by tests and the single
// binary local setup.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]domain.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]domain.Result)}
}

func (s *ResultStore) Upsert(ctx context.Context, result domain.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ID] = result
	return nil
}

func (s *ResultStore) Get(ctx context.Context, id string) (*domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrResultNotFound, "get result", fmt.Errorf("id=%s", id))
	}
	return &result, nil
}

func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
