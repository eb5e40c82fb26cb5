package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents navigation and HTTP errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML/JSON parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents anti-bot blocking errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeStorage represents database errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeRegistry represents open-data registry errors
	ErrorTypeRegistry ErrorType = "registry"
	// ErrorTypeValidation represents record validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError represents a pipeline-stage error
type ScrapeError struct {
	Type    ErrorType
	Stage   string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeRegistry:
		return true
	default:
		return false
	}
}

// New creates a new ScrapeError
func New(errType ErrorType, stage, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Stage:   stage,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(stage, message string, err error) *ScrapeError {
	return New(ErrorTypeNetwork, stage, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(stage, message string, err error) *ScrapeError {
	return New(ErrorTypeParsing, stage, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(stage string, duration time.Duration) *ScrapeError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, stage, message, nil)
}

// NewStorage creates a new storage error
func NewStorage(stage, message string, err error) *ScrapeError {
	return New(ErrorTypeStorage, stage, message, err)
}

// NewRegistry creates a new registry error
func NewRegistry(stage, message string, err error) *ScrapeError {
	return New(ErrorTypeRegistry, stage, message, err)
}

// NewValidation creates a new validation error
func NewValidation(stage, message string) *ScrapeError {
	return New(ErrorTypeValidation, stage, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}
