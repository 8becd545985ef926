// internal/model/campaign.go
package model

import "time"

type Status string

const (
	StatusIdle          Status = "idle"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusSending       Status = "sending"
	StatusCompletedSend Status = "completed-send"
	StatusFailed        Status = "failed"
)

var transitions = map[Status][]Status{
	StatusIdle:          {StatusProcessing},
	StatusProcessing:    {StatusCompleted, StatusFailed},
	StatusCompleted:     {StatusSending, StatusIdle},
	StatusSending:       {StatusCompletedSend, StatusFailed},
	StatusCompletedSend: {StatusIdle},
	StatusFailed:        {StatusIdle},
}

// CanTransition reports whether the campaign state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Progress is the snapshot polled by consumers.
type Progress struct {
	Processed  int `json:"processed"`
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Campaign is one run of generation followed by dispatch. Counts are always derived from
// the task and job statuses.
type Campaign struct {
	ID        string           `json:"id"`
	Status    Status           `json:"status"`
	Tasks     []GenerationTask `json:"tasks"`
	Jobs      []SendJob        `json:"jobs"`
	BatchSize int              `json:"batch_size"`
	LastError string           `json:"last_error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (c *Campaign) GenerationProgress() Progress {
	p := Progress{Total: len(c.Tasks)}
	for _, t := range c.Tasks {
		switch t.Status {
		case GenerationGenerated:
			p.Successful++
		case GenerationFailed:
			p.Failed++
		}
	}
	p.Processed = p.Successful + p.Failed
	return p
}

func (c *Campaign) DeliveryProgress() Progress {
	p := Progress{Total: len(c.Jobs)}
	for _, j := range c.Jobs {
		switch j.Status {
		case SendSent:
			p.Successful++
		case SendFailed:
			p.Failed++
		}
	}
	p.Processed = p.Successful + p.Failed
	return p
}

// GeneratedCount is the number of tasks eligible for delivery.
func (c *Campaign) GeneratedCount() int {
	return c.GenerationProgress().Successful
}

// State returns the value handed to callers after every transition.
func (c *Campaign) State() CampaignState {
	st := CampaignState{
		ID:         c.ID,
		Status:     c.Status,
		Generation: c.GenerationProgress(),
		Error:      c.LastError,
		UpdatedAt:  c.UpdatedAt,
	}
	st.Progress = st.Generation
	if len(c.Jobs) > 0 {
		d := c.DeliveryProgress()
		st.Delivery = &d
		if c.Status == StatusSending || c.Status == StatusCompletedSend {
			st.Progress = d
		}
	}
	return st
}

// CampaignState is an immutable snapshot of a campaign.
type CampaignState struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Progress   Progress  `json:"progress"`
	Generation Progress  `json:"generation"`
	Delivery   *Progress `json:"delivery,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CampaignReport is a pure reduction of the send jobs of a run.
type CampaignReport struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Batches    int `json:"batches"`
	BatchSize  int `json:"batchSize"`
}

// ReportEvent is published when a campaign finishes sending.
type ReportEvent struct {
	CampaignID  string         `json:"campaign_id"`
	Report      CampaignReport `json:"report"`
	Jobs        []SendJob      `json:"jobs"`
	CompletedAt time.Time      `json:"completed_at"`
}
