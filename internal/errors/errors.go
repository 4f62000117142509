package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Vitrine error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"       // 401
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrMissingPassword   ErrorCode = "MISSING_PASSWORD"   // 412
	ErrMissingCredential ErrorCode = "MISSING_CREDENTIAL" // 412
	ErrNoPendingContext  ErrorCode = "NO_PENDING_CONTEXT" // 409
	ErrForbidden         ErrorCode = "FORBIDDEN"          // 403
	ErrPayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"  // 413
	ErrUnsupportedMedia  ErrorCode = "UNSUPPORTED_MEDIA"  // 415
	ErrRateLimited       ErrorCode = "RATE_LIMITED"       // 429
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrStorageFailure    ErrorCode = "STORAGE_FAILURE"    // 502
	ErrAnalysisFailed    ErrorCode = "ANALYSIS_FAILED"    // 502
)

// VitrineError represents a structured error with code, status, and details.
type VitrineError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *VitrineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *VitrineError) Unwrap() error {
	return e.Cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *VitrineError {
	return &VitrineError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for failed logins and bad API tokens.
func NewUnauthorized(msg string) *VitrineError {
	return &VitrineError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when an item cannot be found.
func NewNotFound(identifier string) *VitrineError {
	return &VitrineError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("item not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewMissingPassword creates a 412 error for a profile without an admin password.
func NewMissingPassword() *VitrineError {
	return &VitrineError{
		Code:    ErrMissingPassword,
		Status:  412,
		Message: "store profile has no admin password; complete setup first",
	}
}

// NewMissingCredential creates a 412 error when no AI credential is configured.
func NewMissingCredential() *VitrineError {
	return &VitrineError{
		Code:    ErrMissingCredential,
		Status:  412,
		Message: "AI API key is missing; add it in the store settings",
	}
}

// NewNoPendingContext creates a 409 error for the details view reached without a draft.
func NewNoPendingContext() *VitrineError {
	return &VitrineError{
		Code:    ErrNoPendingContext,
		Status:  409,
		Message: "no item is being edited",
	}
}

// NewPayloadTooLarge creates a 413 error when a request body exceeds the limit.
func NewPayloadTooLarge(max int64) *VitrineError {
	return &VitrineError{
		Code:    ErrPayloadTooLarge,
		Status:  413,
		Message: fmt.Sprintf("request body exceeds %d bytes", max),
		Details: map[string]any{"max_bytes": max},
	}
}

// NewForbidden creates a 403 error for a request refused regardless of
// credentials, such as one sent by a foreign origin.
func NewForbidden(msg string) *VitrineError {
	return &VitrineError{
		Code:    ErrForbidden,
		Status:  403,
		Message: msg,
	}
}

// NewUnsupportedMedia creates a 415 error for a body that is not JSON.
func NewUnsupportedMedia(got string) *VitrineError {
	return &VitrineError{
		Code:    ErrUnsupportedMedia,
		Status:  415,
		Message: fmt.Sprintf("content type must be application/json, got %q", got),
		Details: map[string]any{"content_type": got},
	}
}

// NewRateLimited creates a 429 error when an action is attempted too often.
func NewRateLimited(action string) *VitrineError {
	return &VitrineError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: fmt.Sprintf("too many %s attempts; try again shortly", action),
		Details: map[string]any{"action": action},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *VitrineError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &VitrineError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Cause:   err,
	}
}

// NewStorageFailure creates a 502 error wrapping a backend or transport failure.
func NewStorageFailure(op string, err error) *VitrineError {
	msg := fmt.Sprintf("%s failed", op)
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &VitrineError{
		Code:    ErrStorageFailure,
		Status:  502,
		Message: msg,
		Details: map[string]any{"operation": op},
		Cause:   err,
	}
}

// NewAnalysisFailed creates a 502 error wrapping an AI service failure.
func NewAnalysisFailed(err error) *VitrineError {
	msg := "image analysis failed"
	if err != nil {
		msg = fmt.Sprintf("image analysis failed: %v", err)
	}
	return &VitrineError{
		Code:    ErrAnalysisFailed,
		Status:  502,
		Message: msg,
		Cause:   err,
	}
}

// As returns the first VitrineError in err's chain.
func As(err error) (*VitrineError, bool) {
	var vErr *VitrineError
	if stderrors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}

// Is checks if an error is (or wraps) a VitrineError with the given code.
func Is(err error, code ErrorCode) bool {
	if vErr, ok := As(err); ok {
		return vErr.Code == code
	}
	return false
}

// IsConfiguration reports whether err is a blocking configuration error
// (missing password or AI credential).
func IsConfiguration(err error) bool {
	return Is(err, ErrMissingPassword) || Is(err, ErrMissingCredential)
}

// Wrap converts any error into a VitrineError, keeping existing ones as-is.
func Wrap(err error) *VitrineError {
	if err == nil {
		return nil
	}
	if vErr, ok := As(err); ok {
		return vErr
	}
	return NewInternal(err)
}
