package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeUnavailable  ErrorType = "unavailable"
)

// DomainError represents a structured error with additional context.
// Code is the stable identifier clients see in the "error" field.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is; two domain errors match when their codes match
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of the error carrying cause
func (e *DomainError) Wrap(cause error) *DomainError {
	return &DomainError{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Err:     cause,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

var (
	ErrMissingCredential   = NewDomainError(ErrorTypeValidation, "missing_credential", "credential is required", nil)
	ErrUnverifiedIdentity  = NewDomainError(ErrorTypeValidation, "unverified_identity", "email address is not verified", nil)
	ErrInvalidAssertion    = NewDomainError(ErrorTypeUnauthorized, "invalid_assertion", "identity assertion is invalid", nil)
	ErrUnauthenticated     = NewDomainError(ErrorTypeUnauthorized, "unauthenticated", "authentication required", nil)
	ErrForbidden           = NewDomainError(ErrorTypeForbidden, "forbidden", "access forbidden", nil)
	ErrIdentityNotFound    = NewDomainError(ErrorTypeNotFound, "identity_not_found", "identity not found", nil)
	ErrUnknownProvider     = NewDomainError(ErrorTypeNotFound, "unknown_provider", "identity provider not supported", nil)
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "provider_unavailable", "identity provider unavailable", nil)
	ErrStoreUnavailable    = NewDomainError(ErrorTypeUnavailable, "store_unavailable", "identity store unavailable", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal_error", "internal server error", nil)
)

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the client-facing code of a domain error, or empty string if not a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, ErrInternal.Code, message, err)
}
