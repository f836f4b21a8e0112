package domain

import (
	"errors"
	"fmt"
)

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
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the outermost DomainError in err's chain, or "".
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// HasCode reports whether any DomainError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			return false
		}
		if domainErr.Code == code {
			return true
		}
		err = domainErr.Err
	}
	return false
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodeEmptyDataset      = "EMPTY_DATASET"
	ErrCodeCachePersist      = "CACHE_PERSIST_ERROR"
	ErrCodeSyncInProgress    = "SYNC_IN_PROGRESS"
	ErrCodeStartupFailure    = "STARTUP_FAILURE"
	ErrCodeRequestTooLarge   = "REQUEST_TOO_LARGE"
)

// Validation errors
var (
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "search query must not be empty")
	ErrInvalidPageSize   = NewDomainError(ErrCodeValidation, "page size must be positive")
	ErrMissingCredential = NewDomainError(ErrCodeValidation, "vendor app key and secret are required")
	ErrRequestTooLarge   = NewDomainError(ErrCodeRequestTooLarge, "request body too large")
)

// Sync errors
var (
	ErrSyncInProgress = NewDomainError(ErrCodeSyncInProgress, "sync already in progress")
	ErrNoRecords      = NewDomainError(ErrCodeEmptyDataset, "no knowledge records returned")
	ErrSnapshotAbsent = NewDomainError(ErrCodeNotFound, "no local snapshot available")
)

// NewNetworkError wraps a transport or non-success response failure.
func NewNetworkError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeNetwork, message, err)
}

// NewMalformedResponseError wraps a payload that could not be decoded.
func NewMalformedResponseError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeMalformedResponse, message, err)
}
