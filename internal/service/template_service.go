// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/mailcampaign/internal/model"
)

const DefaultSystemPrompt = `You are an expert email outreach specialist. Your goal is to create personalized, engaging emails that feel authentic and human.

Key Instructions:
- Use the provided person's information to create relevant, personalized content
- Maintain a professional yet approachable tone
- Keep emails concise but compelling
- Include a clear call-to-action
- Avoid generic or spammy language`

const DefaultUserTemplate = `Write a personalized email using the following information:

Person's Details: {person_info}
Company: {company}
Role: {role}
Industry: {industry}
Additional Info: {additional_info}

Email Purpose: {email_purpose}
Call-to-Action: {call_to_action}

Create an email that:
1. Addresses them personally
2. Shows you've researched their background
3. Provides clear value proposition
4. Includes the specified call-to-action
5. Maintains professional tone

Generate both subject line and email body.`

const defaultTemperature = 0.7

// TemplateConfig is the operator's agent configuration for a campaign. A nil Temperature is
// unset; zero is a valid deterministic setting.
type TemplateConfig struct {
	SystemPrompt string   `json:"systemPrompt"`
	UserTemplate string   `json:"userTemplate"`
	EmailPurpose string   `json:"emailPurpose"`
	CallToAction string   `json:"callToAction"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens"`
}

// Float64 returns a pointer to v, for TemplateConfig.Temperature.
func Float64(v float64) *float64 { return &v }

// SamplingTemperature is the temperature sent to the model.
func (c TemplateConfig) SamplingTemperature() float64 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		SystemPrompt: DefaultSystemPrompt,
		UserTemplate: DefaultUserTemplate,
		EmailPurpose: "Professional outreach for partnership opportunities",
		CallToAction: "Schedule a brief 15-minute call to discuss potential collaboration",
		Temperature:  Float64(defaultTemperature),
		MaxTokens:    500,
	}
}

// WithDefaults fills every empty setting from DefaultTemplateConfig.
func (c TemplateConfig) WithDefaults() TemplateConfig {
	return c.Merge(DefaultTemplateConfig())
}

// Merge fills the settings left empty in c from base.
func (c TemplateConfig) Merge(base TemplateConfig) TemplateConfig {
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = base.SystemPrompt
	}
	if strings.TrimSpace(c.UserTemplate) == "" {
		c.UserTemplate = base.UserTemplate
	}
	if strings.TrimSpace(c.EmailPurpose) == "" {
		c.EmailPurpose = base.EmailPurpose
	}
	if strings.TrimSpace(c.CallToAction) == "" {
		c.CallToAction = base.CallToAction
	}
	if c.Temperature == nil && base.Temperature != nil {
		c.Temperature = Float64(*base.Temperature)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = base.MaxTokens
	}
	return c
}

// FieldContext is everything a user template may reference.
type FieldContext struct {
	PersonInfo     string
	Name           string
	Email          string
	Company        string
	Role           string
	Industry       string
	AdditionalInfo string
	EmailPurpose   string
	CallToAction   string
}

// NewFieldContext resolves a contact against the template config. Missing fields get
// neutral defaults so a rendered prompt never contains an empty slot.
func NewFieldContext(c model.ContactRecord, cfg TemplateConfig) FieldContext {
	return FieldContext{
		PersonInfo:     personInfo(c),
		Name:           orDefault(c.Name, "there"),
		Email:          c.Email,
		Company:        orDefault(c.Company, "their company"),
		Role:           orDefault(c.Role, "their role"),
		Industry:       orDefault(c.Industry, "their industry"),
		AdditionalInfo: orDefault(c.AdditionalInfo, "none provided"),
		EmailPurpose:   cfg.EmailPurpose,
		CallToAction:   cfg.CallToAction,
	}
}

func (f FieldContext) lookup(key string) (string, bool) {
	switch key {
	case "person_info":
		return f.PersonInfo, true
	case "name":
		return f.Name, true
	case "email":
		return f.Email, true
	case "company":
		return f.Company, true
	case "role":
		return f.Role, true
	case "industry":
		return f.Industry, true
	case "additional_info":
		return f.AdditionalInfo, true
	case "email_purpose":
		return f.EmailPurpose, true
	case "call_to_action":
		return f.CallToAction, true
	}
	return "", false
}

// RenderTemplate substitutes {placeholders} in a single left-to-right pass. Substituted
// values are never rescanned and unknown placeholders are kept verbatim.
func RenderTemplate(template string, fields FieldContext) string {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		if template[i] != '{' {
			b.WriteByte(template[i])
			i++
			continue
		}
		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		key := template[i+1 : i+1+end]
		if v, ok := fields.lookup(key); ok {
			b.WriteString(v)
			i += end + 2
			continue
		}
		b.WriteByte('{')
		i++
	}
	return b.String()
}

// personInfo lists the non-blank source columns as "column: value" lines.
func personInfo(c model.ContactRecord) string {
	var lines []string
	for _, col := range c.Columns {
		v := strings.TrimSpace(c.Raw[col])
		if v == "" {
			continue
		}
		lines = append(lines, col+": "+v)
	}
	return strings.Join(lines, "\n")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
