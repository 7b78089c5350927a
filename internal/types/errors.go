package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// Components MUST use these constants instead of hardcoded strings.
const (
	// Row data problems (recorded on the row, never run-fatal)
	ErrCodeMissingField      ErrorCode = "row_missing_field"
	ErrCodeValidationFailure ErrorCode = "validation_recipient_invalid"

	// Credentials
	ErrCodeTokenRefresh ErrorCode = "auth_token_refresh_failed"
	ErrCodeTokenMissing ErrorCode = "auth_refresh_token_missing"

	// Upstream
	ErrCodeTemplateFetch    ErrorCode = "upstream_template_fetch_failed"
	ErrCodeSend             ErrorCode = "upstream_send_failed"
	ErrCodeStoreUnreachable ErrorCode = "upstream_store_unreachable"
	ErrCodeStoreWrite       ErrorCode = "upstream_store_write_failed"
	ErrCodeUpstreamDown     ErrorCode = "upstream_unavailable"

	// Internal
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// IsUpstream reports whether the code describes a failure of an external
// collaborator rather than bad row data.
func (c ErrorCode) IsUpstream() bool {
	return strings.HasPrefix(string(c), "upstream_") || strings.HasPrefix(string(c), "auth_")
}

// AppError is the standard application error type used throughout the pipeline.
// All component errors should be expressed as AppError so the orchestrator can
// classify them and record a human readable message on the row.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the ErrorCode of the first AppError in err's chain, or
// ErrCodeInternalUnexpected when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// MessageOf returns the human readable part of err: the Message of the first
// AppError in the chain, or err.Error() otherwise. Row status fields use this
// so operators do not see internal codes.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
