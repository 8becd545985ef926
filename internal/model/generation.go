// internal/model/generation.go
package model

import "errors"

type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationGenerated GenerationStatus = "generated"
	GenerationFailed    GenerationStatus = "failed"
)

func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationGenerated || s == GenerationFailed
}

var ErrTaskResolved = errors.New("generation task already resolved")

// GenerationTask tracks the AI draft for a single contact.
type GenerationTask struct {
	Index   int              `json:"index"`
	Contact ContactRecord    `json:"contact"`
	Prompt  string           `json:"prompt,omitempty"`
	Status  GenerationStatus `json:"status"`
	Subject string           `json:"subject,omitempty"`
	Body    string           `json:"body,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func NewGenerationTask(index int, contact ContactRecord) GenerationTask {
	return GenerationTask{
		Index:   index,
		Contact: contact,
		Status:  GenerationPending,
	}
}

// Resolve marks the task generated. A task only leaves pending once.
func (t *GenerationTask) Resolve(subject, body string) error {
	if t.Status.IsTerminal() {
		return ErrTaskResolved
	}
	t.Status = GenerationGenerated
	t.Subject = subject
	t.Body = body
	t.Error = ""
	return nil
}

func (t *GenerationTask) Fail(err error) error {
	if t.Status.IsTerminal() {
		return ErrTaskResolved
	}
	t.Status = GenerationFailed
	if err != nil {
		t.Error = err.Error()
	}
	return nil
}
