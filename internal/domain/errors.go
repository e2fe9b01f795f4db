package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeStateConflict    = "STATE_CONFLICT"
	ErrCodeProvider         = "PROVIDER_ERROR"
	ErrCodeQueueUnavailable = "QUEUE_UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingBusinessID   = NewDomainError(ErrCodeValidation, "business id is required")
	ErrEmptyMessageContent = NewDomainError(ErrCodeValidation, "message content cannot be empty")
	ErrEmptyKnowledgeBody  = NewDomainError(ErrCodeValidation, "knowledge body cannot be empty")
	ErrInvalidSenderClass  = NewDomainError(ErrCodeValidation, "invalid sender class")
	ErrInvalidQualityScore = NewDomainError(ErrCodeValidation, "quality score must be between 1 and 5")
	ErrInvalidJobTopic     = NewDomainError(ErrCodeValidation, "invalid job topic")
	ErrInvalidSearchLimit  = NewDomainError(ErrCodeValidation, "search limit must be positive")
	ErrInvalidCrawlURL     = NewDomainError(ErrCodeValidation, "crawl url must be absolute http(s)")
	ErrEmptyEmbeddingInput = NewDomainError(ErrCodeValidation, "embedding input cannot be empty")
)

// Not found errors
var (
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrMessageNotFound      = NewDomainError(ErrCodeNotFound, "message not found")
	ErrKnowledgeNotFound    = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrHandoffNotFound      = NewDomainError(ErrCodeNotFound, "handoff request not found")
	ErrBusinessNotFound     = NewDomainError(ErrCodeNotFound, "business not found")
	ErrJobNotFound          = NewDomainError(ErrCodeNotFound, "job not found")
	ErrAPIKeyNotFound       = NewDomainError(ErrCodeNotFound, "api key not found")
)

// State conflict errors
var (
	ErrHandoffAlreadyPending = NewDomainError(ErrCodeStateConflict, "conversation already waiting for an agent")
	ErrHandoffNotPending     = NewDomainError(ErrCodeStateConflict, "handoff request is not pending")
	ErrHandoffNotAccepted    = NewDomainError(ErrCodeStateConflict, "handoff request is not accepted")
	ErrConversationClosed    = NewDomainError(ErrCodeStateConflict, "conversation is closed")
)

// Provider and queue errors
var (
	ErrNoProviderConfigured = NewDomainError(ErrCodeProvider, "no embedding provider configured")
	ErrQueueUnavailable     = NewDomainError(ErrCodeQueueUnavailable, "job queue backend unavailable")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
)
