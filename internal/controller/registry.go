package controller

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/progress"
	"github.com/unclebandit/mailcampaign/internal/service"
)

// Registry maps campaign ids to their controllers.
type Registry struct {
	deps Deps

	mu        sync.RWMutex
	campaigns map[string]*CampaignController
}

func NewRegistry(deps Deps) *Registry {
	if deps.Store == nil {
		deps.Store = progress.NewMemoryStore()
	}
	return &Registry{deps: deps, campaigns: make(map[string]*CampaignController)}
}

// Create registers a new idle campaign over contacts.
func (r *Registry) Create(contacts []model.ContactRecord, tc service.TemplateConfig) *CampaignController {
	cc := NewCampaignController(uuid.NewString(), contacts, tc, r.deps)

	r.mu.Lock()
	r.campaigns[cc.ID()] = cc
	r.mu.Unlock()
	return cc
}

func (r *Registry) Get(id string) (*CampaignController, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cc, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cc, nil
}

// Progress returns the latest snapshot of a campaign. Campaigns owned by another server
// replica are read from the shared progress store.
func (r *Registry) Progress(ctx context.Context, id string) (model.CampaignState, error) {
	if cc, err := r.Get(id); err == nil {
		return cc.Snapshot(), nil
	}
	return r.deps.Store.Load(ctx, id)
}

// List returns every campaign state, newest first.
func (r *Registry) List() []model.CampaignState {
	r.mu.RLock()
	ccs := make([]*CampaignController, 0, len(r.campaigns))
	for _, cc := range r.campaigns {
		ccs = append(ccs, cc)
	}
	r.mu.RUnlock()

	states := make([]model.CampaignState, len(ccs))
	created := make(map[string]int64, len(ccs))
	for i, cc := range ccs {
		states[i] = cc.Snapshot()
		created[cc.ID()] = cc.createdAt().UnixNano()
	}
	sort.Slice(states, func(i, j int) bool {
		return created[states[i].ID] > created[states[j].ID]
	})
	return states
}

// Delete removes an idle or finished campaign. Running campaigns are refused.
func (r *Registry) Delete(ctx context.Context, id string) error {
	cc, err := r.Get(id)
	if err != nil {
		return err
	}
	st := cc.Snapshot().Status
	if st == model.StatusProcessing || st == model.StatusSending {
		return appErrors.NewInvalidState("delete", string(st), "cancel the campaign first")
	}

	r.mu.Lock()
	delete(r.campaigns, id)
	r.mu.Unlock()

	return r.deps.Store.Delete(ctx, id)
}

// CancelAll cancels every running campaign and returns how many were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, cc := range r.campaigns {
		if _, err := cc.Cancel(); err == nil {
			n++
		}
	}
	return n
}
