package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures independently of the transport.
type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "VALIDATION"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

type Error struct {
	Code    ErrorCode
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation reports bad caller input for a single field.
func Validation(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Field: field, Message: message}
}

// StoreUnavailable wraps a storage failure; callers may retry.
func StoreUnavailable(op string, err error) *Error {
	return WrapError(ErrCodeStoreUnavailable, op, err)
}

var (
	ErrNotFound     = NewError(ErrCodeNotFound, "")
	ErrTaskNotFound = NewError(ErrCodeNotFound, "task not found")
	ErrStaleVersion = NewError(ErrCodeConflict, "task was modified concurrently")
)

// IsCode reports whether err carries the given classification.
func IsCode(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
