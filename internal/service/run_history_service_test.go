package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/service"
)

// Mock run repository for pagination
type MockRunRepo struct {
	runs    []*model.CampaignRun
	results map[string][]model.SendJob
}

func newMockRunRepo(n int) *MockRunRepo {
	m := &MockRunRepo{results: map[string][]model.SendJob{}}
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := n; i >= 1; i-- {
		m.runs = append(m.runs, &model.CampaignRun{
			ID:          fmt.Sprintf("run-%d", i),
			Report:      model.CampaignReport{Total: i},
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return m
}

func (m *MockRunRepo) SaveReport(ctx context.Context, ev model.ReportEvent) error { return nil }

func (m *MockRunRepo) GetRun(ctx context.Context, id string) (*model.CampaignRun, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, appErrors.NewCampaignNotFound(id)
}

func (m *MockRunRepo) ListRuns(ctx context.Context, offset, limit int, email string) ([]*model.CampaignRun, int, error) {
	start := offset
	end := offset + limit
	if start >= len(m.runs) {
		return []*model.CampaignRun{}, len(m.runs), nil
	}
	if end > len(m.runs) {
		end = len(m.runs)
	}
	return m.runs[start:end], len(m.runs), nil
}

func (m *MockRunRepo) ListResults(ctx context.Context, campaignID string) ([]model.SendJob, error) {
	return m.results[campaignID], nil
}

func TestListRunsPagination(t *testing.T) {
	svc := &service.RunHistoryService{RunRepo: newMockRunRepo(5)}
	ctx := context.Background()

	page1, pagination1, err := svc.ListRuns(ctx, 1, 2, "")
	require.NoError(t, err)
	page2, _, err := svc.ListRuns(ctx, 2, 2, "")
	require.NoError(t, err)
	page3, pagination3, err := svc.ListRuns(ctx, 3, 2, "")
	require.NoError(t, err)

	assert.Equal(t, 5, pagination1["total_count"])
	assert.Equal(t, 3, pagination1["total_pages"])
	assert.Len(t, page1, 2)
	assert.Len(t, page2, 2)
	assert.Len(t, page3, 1)
	assert.Equal(t, 5, pagination3["total_count"])

	assert.True(t, page1[0].CompletedAt.After(page1[1].CompletedAt), "newest first")
	assert.NotEqual(t, page1[1].ID, page2[0].ID)
}

func TestListRunsClampsPageSize(t *testing.T) {
	svc := &service.RunHistoryService{RunRepo: newMockRunRepo(3)}

	_, pagination, err := svc.ListRuns(context.Background(), 0, 1000, "")
	require.NoError(t, err)
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 100, pagination["page_size"])
}

func TestGetRunDetails(t *testing.T) {
	repo := newMockRunRepo(2)
	repo.results["run-1"] = []model.SendJob{{Email: "ann@example.com", Status: model.SendSent}}
	svc := &service.RunHistoryService{RunRepo: repo}

	details, err := svc.GetRunDetails(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", details.ID)
	assert.Len(t, details.Results, 1)

	_, err = svc.GetRunDetails(context.Background(), "missing")
	var nf *appErrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &nf)
}
