package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/queue"
)

// MockRunRepo stores reports in memory
type MockRunRepo struct {
	mu    sync.Mutex
	saved []model.ReportEvent
	done  chan struct{}
}

func (m *MockRunRepo) SaveReport(ctx context.Context, ev model.ReportEvent) error {
	m.mu.Lock()
	m.saved = append(m.saved, ev)
	m.mu.Unlock()
	m.done <- struct{}{}
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

func TestWorkerPersistsReports(t *testing.T) {
	q := queue.NewInMemoryQueue(logger.Nop())
	defer q.Close()
	repo := &MockRunRepo{done: make(chan struct{}, 1)}

	require.NoError(t, consumeReports(q, "", repo, logger.Nop()))

	ev := model.ReportEvent{
		CampaignID: "c-1",
		Report:     model.CampaignReport{Total: 2, Successful: 1, Failed: 1, Batches: 1},
	}
	require.NoError(t, q.Publish(queue.DefaultReportTopic, ev))

	select {
	case <-repo.done:
	case <-time.After(2 * time.Second):
		t.Fatal("report was not persisted")
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.saved, 1)
	assert.Equal(t, "c-1", repo.saved[0].CampaignID)
	assert.Equal(t, 1, repo.saved[0].Report.Failed)
}
