// Package ai talks to the chat completion provider that writes personalized drafts.
package ai

import "context"

// Request is what the personalization engine sends for one contact.
type Request struct {
	SystemPrompt string  `json:"systemPrompt"`
	UserPrompt   string  `json:"userPrompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
}

// Draft is a generated email.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Generator is the interface the engine depends on.
type Generator interface {
	Generate(ctx context.Context, req Request) (Draft, error)
}
