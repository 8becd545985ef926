// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is returned when a campaign id is unknown
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ParseError means the uploaded contact list cannot be used.
type ParseError struct {
	Line   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse contacts: " + e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("parse contacts: line %d: %s", e.Line, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func NewParseError(reason string) error {
	return &ParseError{Reason: reason}
}

func NewParseErrorAt(line int, reason string, err error) error {
	return &ParseError{Line: line, Reason: reason, Err: err}
}

// MappingError means a required field has no source column.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("field mapping: %s: %s", e.Field, e.Reason)
}

func NewMappingError(field, reason string) error {
	return &MappingError{Field: field, Reason: reason}
}

// GenerationError is a per-contact AI failure.
type GenerationError struct {
	Email string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate email for %q: %v", e.Email, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func NewGenerationError(email string, err error) error {
	return &GenerationError{Email: email, Err: err}
}

// ConfigError means the mail relay cannot be used; it aborts the whole send phase.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mail config: %s: %v", e.Reason, e.Err)
	}
	return "mail config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(reason string, err error) error {
	return &ConfigError{Reason: reason, Err: err}
}

// DeliveryError is a per-recipient send failure.
type DeliveryError struct {
	Email string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %q: %v", e.Email, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func NewDeliveryError(email string, err error) error {
	return &DeliveryError{Email: email, Err: err}
}

// InvalidStateError is returned for an operation the campaign state does not allow.
type InvalidStateError struct {
	Op     string
	State  string
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s in state %s: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}

func NewInvalidState(op, state, reason string) error {
	return &InvalidStateError{Op: op, State: state, Reason: reason}
}
