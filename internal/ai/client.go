package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/unclebandit/mailcampaign/internal/logger"
)

const answerFormat = `Format your response as a JSON object with the following structure:
{
  "subject": "The email subject line",
  "body": "The full email body"
}`

// Config for the chat completion client.
type Config struct {
	APIKey  string
	BaseURL string // default https://api.openai.com/v1
	Model   string // e.g. "gpt-4o-mini"
	Timeout time.Duration
}

// Client implements Generator against an OpenAI compatible chat/completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	schema     *jsonschema.Schema
	log        *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	schema, err := compileSchema(DraftSchema())
	if err != nil {
		return nil, fmt.Errorf("compile draft schema: %w", err)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		schema:     schema,
		log:        log.WithComponent("ai"),
	}, nil
}

// Generate asks the model for one draft. Any non-2xx status or an answer without a
// subject and body is an error.
func (c *Client) Generate(ctx context.Context, req Request) (Draft, error) {
	rid := uuid.New().String()
	start := time.Now()

	if strings.TrimSpace(req.SystemPrompt) == "" || strings.TrimSpace(req.UserPrompt) == "" {
		return Draft{}, fmt.Errorf("missing required prompts")
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     req.Temperature,
		"max_tokens":      req.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": req.SystemPrompt + "\n\n" + answerFormat},
			{"role": "user", "content": req.UserPrompt},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Warn().Str("req_id", rid).Err(err).Dur("elapsed", time.Since(start)).Msg("ai.generate.http_error")
		return Draft{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return Draft{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(cc.Choices) == 0 {
		return Draft{}, fmt.Errorf("no choices in completion")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := validate(c.schema, content); err != nil {
		c.log.Warn().Str("req_id", rid).Err(err).Msg("ai.generate.invalid_answer")
		return Draft{}, err
	}

	var d Draft
	if err := json.Unmarshal(content, &d); err != nil {
		return Draft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	d.Subject = strings.TrimSpace(d.Subject)
	d.Body = strings.TrimSpace(d.Body)

	c.log.Debug().
		Str("req_id", rid).
		Int("subject_len", len(d.Subject)).
		Int("body_len", len(d.Body)).
		Dur("elapsed", time.Since(start)).
		Msg("ai.generate.ok")
	return d, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn().Err(err).Msg("completion response body close error")
		}
	}(resp.Body)

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, apiErrorMessage(buf))
	}
	return buf, nil
}

// apiErrorMessage pulls error.message out of a provider error payload.
func apiErrorMessage(raw []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		if payload.Error.Code != "" {
			return payload.Error.Code + ": " + payload.Error.Message
		}
		return payload.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
