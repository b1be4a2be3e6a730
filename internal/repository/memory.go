package repository

import (
	"context"
	"sync"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore keeps the registry and obligations in process memory.
// Values are cloned on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	registry    *model.AssetRegistry
	obligations map[common.Address]*model.Obligation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		obligations: make(map[common.Address]*model.Obligation),
	}
}

func (s *MemoryStore) LoadRegistry(ctx context.Context) (*model.AssetRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registry == nil {
		return nil, model.ErrRecordNotFound
	}
	return s.registry.Clone(), nil
}

func (s *MemoryStore) SaveRegistry(ctx context.Context, reg *model.AssetRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = reg.Clone()
	return nil
}

func (s *MemoryStore) DeleteRegistry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry == nil {
		return model.ErrRecordNotFound
	}
	s.registry = nil
	return nil
}

func (s *MemoryStore) GetObligation(ctx context.Context, owner common.Address) (*model.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.obligations[owner]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) SaveObligation(ctx context.Context, o *model.Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations[o.Owner] = o.Clone()
	return nil
}

func (s *MemoryStore) DeleteObligation(ctx context.Context, owner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.obligations[owner]; !ok {
		return model.ErrRecordNotFound
	}
	delete(s.obligations, owner)
	return nil
}
