package share

import (
	"errors"
	"fmt"
)

// Domain error codes. Validation and authorization errors are synchronous
// and abort the enclosing transaction; external-resource errors are recorded
// on the affected item and never surface to the request path.
const (
	ErrCodeRequiredParameter        = "RequiredParameter"
	ErrCodeObjectNotFound           = "ObjectNotFound"
	ErrCodeUnauthorizedOperation    = "UnauthorizedOperation"
	ErrCodeInvalidShareState        = "InvalidShareState"
	ErrCodeExternalResourceNotFound = "ExternalResourceNotFound"
)

// Error is a structured domain error with a stable code.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrRequiredParameter reports a missing or malformed request parameter.
func ErrRequiredParameter(param string) *Error {
	return &Error{
		Code:    ErrCodeRequiredParameter,
		Message: fmt.Sprintf("required parameter %s is missing", param),
	}
}

// ErrObjectNotFound reports a referenced entity that does not exist.
func ErrObjectNotFound(kind, uri string) *Error {
	return &Error{
		Code:    ErrCodeObjectNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, uri),
	}
}

// ErrUnauthorizedOperation reports a caller lacking the required permission
// or a structural precondition violation.
func ErrUnauthorizedOperation(action, reason string) *Error {
	return &Error{
		Code:    ErrCodeUnauthorizedOperation,
		Message: fmt.Sprintf("%s is not allowed: %s", action, reason),
	}
}

// ErrInvalidShareState reports an illegal lifecycle transition attempt.
func ErrInvalidShareState(uri string, from, to string) *Error {
	return &Error{
		Code:    ErrCodeInvalidShareState,
		Message: fmt.Sprintf("share %s cannot move from %s to %s", uri, from, to),
	}
}

// ErrExternalResourceNotFound reports that the external substrate has no
// record of the addressed resource.
func ErrExternalResourceNotFound(resource string) *Error {
	return &Error{
		Code:    ErrCodeExternalResourceNotFound,
		Message: fmt.Sprintf("external resource %s not found", resource),
	}
}

// ErrorCode extracts the domain error code from an error chain.
// Returns empty string for non-domain errors.
func ErrorCode(err error) string {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return ""
}

// IsNotFound reports whether err is an ObjectNotFound domain error.
func IsNotFound(err error) bool {
	return ErrorCode(err) == ErrCodeObjectNotFound
}

// IsUnauthorized reports whether err is an UnauthorizedOperation domain error.
func IsUnauthorized(err error) bool {
	return ErrorCode(err) == ErrCodeUnauthorizedOperation
}
