// internal/model/send_job.go
package model

import (
	"fmt"
	"time"
)

type SendStatus string

const (
	SendPending SendStatus = "pending"
	SendSent    SendStatus = "sent"
	SendFailed  SendStatus = "failed"
)

// SendJob tracks one delivery attempt to one recipient.
type SendJob struct {
	TaskIndex       int        `json:"task_index"`
	Email           string     `json:"email"`
	Subject         string     `json:"subject"`
	Body            string     `json:"body"`
	Status          SendStatus `json:"status"`
	BatchIndex      int        `json:"batch_index"`
	PositionInBatch int        `json:"position_in_batch"`
	Timestamp       time.Time  `json:"timestamp,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// NewSendJob builds a pending job from a generated task. Any other task status is rejected.
func NewSendJob(task GenerationTask) (SendJob, error) {
	if task.Status != GenerationGenerated {
		return SendJob{}, fmt.Errorf("task %d is %s, only generated tasks can be sent", task.Index, task.Status)
	}
	return SendJob{
		TaskIndex: task.Index,
		Email:     task.Contact.Email,
		Subject:   task.Subject,
		Body:      task.Body,
		Status:    SendPending,
	}, nil
}

// Record stores the outcome of the attempt. Only pending jobs change.
func (j *SendJob) Record(at time.Time, err error) {
	if j.Status != SendPending {
		return
	}
	j.Timestamp = at
	if err != nil {
		j.Status = SendFailed
		j.Error = err.Error()
		return
	}
	j.Status = SendSent
}
