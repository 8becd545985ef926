// Package progress keeps the latest CampaignState of each campaign for polling consumers.
package progress

import (
	"context"
	"sync"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

// Store holds campaign snapshots keyed by campaign id.
type Store interface {
	Save(ctx context.Context, st model.CampaignState) error
	Load(ctx context.Context, id string) (model.CampaignState, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]model.CampaignState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]model.CampaignState)}
}

func (s *MemoryStore) Save(_ context.Context, st model.CampaignState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Delivery != nil {
		d := *st.Delivery
		st.Delivery = &d
	}
	s.states[st.ID] = st
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (model.CampaignState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return model.CampaignState{}, appErrors.NewCampaignNotFound(id)
	}
	return st, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}
