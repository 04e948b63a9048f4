// Package services composes extraction, validation, normalization and injection
// into the operations exposed by the API and the CLI.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/graphsmith/pkg/credentials"
	"github.com/dukex/graphsmith/pkg/extractor"
	"github.com/dukex/graphsmith/pkg/injector"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/dukex/graphsmith/pkg/validator"
)

var (
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTemplateNotFound is returned when a template is not found.
	ErrTemplateNotFound = persistence.ErrTemplateNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError reports errors caused by the input: unparseable model
// output, schema violations, dangling connections, unresolved placeholders
// and malformed requests.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, extractor.ErrExtractionFailure) ||
		errors.Is(err, validator.ErrSchemaViolation) ||
		errors.Is(err, validator.ErrDanglingConnection) ||
		errors.Is(err, injector.ErrUnresolvedPlaceholder) ||
		errors.Is(err, injector.ErrInvalidRequest) ||
		errors.Is(err, injector.ErrInvalidTemplate) ||
		errors.Is(err, persistence.ErrInvalidSort)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsConflictError checks if an error is a duplicate that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, persistence.ErrTemplateAlreadyExists)
}

// IsRetryable reports failures of the credential store worth retrying.
func IsRetryable(err error) bool {
	return credentials.IsRetryable(err)
}

// ErrorCode maps an error to the stable code carried in API problem responses.
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code != "" {
		return serviceErr.Code
	}

	switch {
	case errors.Is(err, extractor.ErrExtractionFailure):
		return "extraction_failure"
	case errors.Is(err, validator.ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, validator.ErrDanglingConnection):
		return "dangling_connection"
	case errors.Is(err, injector.ErrUnresolvedPlaceholder):
		return "unresolved_placeholder"
	case errors.Is(err, credentials.ErrCredentialCreation):
		return "credential_creation"
	case IsNotFound(err):
		return "not_found"
	case IsConflictError(err):
		return "conflict"
	case IsValidationError(err):
		return "invalid_request"
	default:
		return "internal"
	}
}
