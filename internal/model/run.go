// internal/model/run.go
package model

import "time"

// CampaignRun is a finished campaign as persisted in run history.
type CampaignRun struct {
	ID          string         `json:"id"`
	Report      CampaignReport `json:"report"`
	CompletedAt time.Time      `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
}
