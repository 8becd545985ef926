// internal/service/run_history_service.go
package service

import (
	"context"

	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/repository"
)

type RunHistoryService struct {
	RunRepo repository.RunRepositoryInterface
}

type RunDetails struct {
	model.CampaignRun
	Results []model.SendJob `json:"results"`
}

// ListRuns fetches finished runs with pagination
func (s *RunHistoryService) ListRuns(ctx context.Context, page, pageSize int, email string) ([]model.CampaignRun, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.RunRepo.ListRuns(ctx, offset, pageSize, email)
	if err != nil {
		return nil, nil, err
	}

	runs := make([]model.CampaignRun, len(ptrs))
	for i, r := range ptrs {
		runs[i] = *r
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return runs, pagination, nil
}

// GetRunDetails fetches a run together with its per-recipient results
func (s *RunHistoryService) GetRunDetails(ctx context.Context, id string) (*RunDetails, error) {
	run, err := s.RunRepo.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := s.RunRepo.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetails{CampaignRun: *run, Results: results}, nil
}
