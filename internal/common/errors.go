package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Stable error codes surfaced to callers.
const (
	CodeParse       = "ERR_PARSE"         // malformed source document, required root/field absent
	CodeValidation  = "ERR_VALIDATION"    // extracted data violates a domain invariant
	CodeNoTextLayer = "ERR_NO_TEXT_LAYER" // PDF has no text layer and OCR is unavailable
	CodeLLMDisabled = "ERR_LLM_DISABLED"  // LLM extraction turned off by configuration
	CodeLLMOutput   = "ERR_LLM_OUTPUT"    // model returned something other than a JSON object
	CodeStore       = "ERR_STORE"         // persistence failure
	CodeReviewInput = "ERR_REVIEW_INPUT"  // human correction record missing/invalid fields
	CodeUnsupported = "ERR_UNSUPPORTED"   // unsupported file type or operation
	CodeConfig      = "ERR_CONFIG"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation failed")
)

// NewAppError builds an AppError; cause may be nil.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Errorf builds an AppError with a formatted message and no cause.
func Errorf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError annotates err with a message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the AppError code in err's chain, or "" when none is present.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
