package cwerr

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API clients.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeInvalidThreshold = "invalid_threshold"
	CodeUpstream         = "upstream_error"
	CodeSourceMissing    = "source_missing"
	CodeUnavailable      = "unavailable"
)

// CostWatchError provides a typed error that can be surfaced to API clients without leaking upstream details.
type CostWatchError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e CostWatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e CostWatchError) Unwrap() error {
	return e.Err
}

// New constructs a new typed CostWatchError.
func New(code, message string, err error) CostWatchError {
	return CostWatchError{Code: code, Message: message, Err: err}
}

// As extracts a CostWatchError from err, accepting both value and pointer forms.
func As(err error) (CostWatchError, bool) {
	var ce CostWatchError
	if errors.As(err, &ce) {
		return ce, true
	}
	var cePtr *CostWatchError
	if errors.As(err, &cePtr) && cePtr != nil {
		return *cePtr, true
	}
	return CostWatchError{}, false
}

// CodeOf returns the code carried by err, or "" when err is not a CostWatchError.
func CodeOf(err error) string {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ""
}
