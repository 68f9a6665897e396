// Package errors provides the categorized error taxonomy used across the
// balance tracker. Registration and credential failures are local and
// recoverable; storage failures abort the enclosing operation.
package errors

import (
	"fmt"
	"net/http"

	"github.com/balance-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryRegistry represents exchange registration errors
	CategoryRegistry ErrorCategory = "registry"
	// CategoryCredentials represents credential store errors
	CategoryCredentials ErrorCategory = "credentials"
	// CategoryProvider represents external collaborator errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Registry errors. All of these leave registry state untouched.

// NewUnsupportedExchangeError reports a name outside the closed exchange set.
func NewUnsupportedExchangeError(name string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "UNSUPPORTED_EXCHANGE",
		Message:    fmt.Sprintf("attempted to register unsupported exchange %s", name),
		Details: map[string]interface{}{
			"exchange": name,
		},
	}
}

// NewAlreadyRegisteredError reports a duplicate registration attempt.
func NewAlreadyRegisteredError(name string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "ALREADY_REGISTERED",
		Message:    fmt.Sprintf("exchange %s is already registered", name),
		Details: map[string]interface{}{
			"exchange": name,
		},
	}
}

// NewNotRegisteredError reports removal of an exchange that is not registered.
func NewNotRegisteredError(name string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_REGISTERED",
		Message:    fmt.Sprintf("exchange %s is not registered", name),
		Details: map[string]interface{}{
			"exchange": name,
		},
	}
}

// NewValidationFailedError reports an API key rejected by the exchange.
func NewValidationFailedError(name string, message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRegistry,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_FAILED",
		Message:    message,
		Details: map[string]interface{}{
			"exchange": name,
		},
	}
}

// NewCredentialFileMissingError reports a credential file that has gone
// missing between startup and a mutation attempt. Benign at load time, fatal
// to the mutating operation.
func NewCredentialFileMissingError(path string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCredentials,
		StatusCode: http.StatusInternalServerError,
		Code:       "CREDENTIAL_FILE_MISSING",
		Message:    "the credential file can not be found",
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// NewCredentialWriteError reports an I/O failure rewriting the credential
// file. There is no partial-write recovery; the operation aborts.
func NewCredentialWriteError(path string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCredentials,
		StatusCode: http.StatusInternalServerError,
		Code:       "CREDENTIAL_WRITE_FAILED",
		Message:    "failed to rewrite the credential file",
		Cause:      cause,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// System errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewProviderError creates an external collaborator error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("data provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// IsCategory reports whether err is a CategorizedError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	ce, ok := err.(*CategorizedError)
	return ok && ce.Category == category
}

// CodeOf returns the error code of a CategorizedError, or "INTERNAL_ERROR"
// for anything else.
func CodeOf(err error) string {
	if ce, ok := err.(*CategorizedError); ok {
		return ce.Code
	}
	return "INTERNAL_ERROR"
}
