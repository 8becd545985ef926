package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign/internal/model"
)

type MockRunRepo struct {
	saved []model.ReportEvent
	err   error
}

func (m *MockRunRepo) SaveReport(ctx context.Context, ev model.ReportEvent) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, ev)
	return nil
}

func (m *MockRunRepo) GetRun(ctx context.Context, id string) (*model.CampaignRun, error) {
	return nil, nil
}

func (m *MockRunRepo) ListRuns(ctx context.Context, offset, limit int, email string) ([]*model.CampaignRun, int, error) {
	return nil, 0, nil
}

func (m *MockRunRepo) ListResults(ctx context.Context, campaignID string) ([]model.SendJob, error) {
	return nil, nil
}

func TestSeed(t *testing.T) {
	repo := &MockRunRepo{}
	n, err := seed(context.Background(), repo, 30, time.Now())
	require.NoError(t, err)
	assert.Equal(t, len(demoRuns), n)
	require.Len(t, repo.saved, len(demoRuns))

	reactivation := repo.saved[1]
	assert.Equal(t, "demo-reactivation", reactivation.CampaignID)
	assert.Equal(t, model.CampaignReport{Total: 38, Successful: 35, Failed: 3, Batches: 2, BatchSize: 30}, reactivation.Report)
	assert.Len(t, reactivation.Jobs, 38)
	assert.True(t, repo.saved[0].CompletedAt.Before(repo.saved[2].CompletedAt))
}

func TestSeedStopsOnError(t *testing.T) {
	repo := &MockRunRepo{err: errors.New("db down")}
	n, err := seed(context.Background(), repo, 0, time.Now())
	assert.Error(t, err)
	assert.Zero(t, n)
}
