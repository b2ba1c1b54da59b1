package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of site error.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrValidation     ErrorCode = "VALIDATION"      // 422
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrForbidden      ErrorCode = "FORBIDDEN"       // 403
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrTooLarge       ErrorCode = "TOO_LARGE"       // 413
	ErrUnsupported    ErrorCode = "UNSUPPORTED"     // 415
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// SiteError is an error with an HTTP status and, for validation failures,
// per-field messages.
type SiteError struct {
	Code    ErrorCode
	Status  int
	Message string
	Fields  map[string]string
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewInvalidRequest(msg string) *SiteError {
	return &SiteError{Code: ErrInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

// NewValidation reports form fields that failed validation, keyed by field
// name.
func NewValidation(fields map[string]string) *SiteError {
	return &SiteError{
		Code:    ErrValidation,
		Status:  http.StatusUnprocessableEntity,
		Message: "please correct the highlighted fields",
		Fields:  fields,
	}
}

// NewUnauthorized is deliberately vague so callers cannot tell an unknown
// account from a wrong password.
func NewUnauthorized() *SiteError {
	return &SiteError{Code: ErrUnauthorized, Status: http.StatusUnauthorized, Message: "invalid credentials"}
}

func NewForbidden(msg string) *SiteError {
	return &SiteError{Code: ErrForbidden, Status: http.StatusForbidden, Message: msg}
}

func NewNotFound(kind, id string) *SiteError {
	return &SiteError{
		Code:    ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
	}
}

func NewConflict(msg string) *SiteError {
	return &SiteError{Code: ErrConflict, Status: http.StatusConflict, Message: msg}
}

func NewTooLarge(max, actual int64) *SiteError {
	return &SiteError{
		Code:    ErrTooLarge,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("upload exceeds maximum size: %d bytes (max %d)", actual, max),
	}
}

func NewUnsupported(mime string) *SiteError {
	return &SiteError{
		Code:    ErrUnsupported,
		Status:  http.StatusUnsupportedMediaType,
		Message: fmt.Sprintf("unsupported file type: %s", mime),
	}
}

// NewInternal wraps an unexpected failure. The cause is kept for logging but
// not shown to visitors.
func NewInternal(err error) *SiteError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SiteError{Code: ErrInternal, Status: http.StatusInternalServerError, Message: msg}
}

// As extracts a SiteError from err, wrapping anything else as internal.
func As(err error) *SiteError {
	var sErr *SiteError
	if stderrors.As(err, &sErr) {
		return sErr
	}
	return NewInternal(err)
}

// Is reports whether err is (or wraps) a SiteError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SiteError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}
