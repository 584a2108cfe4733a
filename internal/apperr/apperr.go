// Package apperr defines the error taxonomy shared by the store, matching
// engine and HTTP layer. Handlers map codes to HTTP statuses exactly once.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeTokenExpired       Code = "token_expired"
	CodeForbidden          Code = "forbidden"
	CodeConflict           Code = "conflict"
	CodeNotFound           Code = "not_found"
	CodeInvalidTransition  Code = "invalid_transition"
	CodeAccountDeactivated Code = "account_deactivated"
	CodeInternal           Code = "internal"
)

type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match two taxonomy errors by code alone, so callers can
// compare against a bare sentinel like apperr.NotFound("").
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Fields: fields}
}

func Unauthenticated(msg string) *Error { return New(CodeUnauthenticated, msg) }
func TokenExpired(msg string) *Error    { return New(CodeTokenExpired, msg) }
func Forbidden(msg string) *Error       { return New(CodeForbidden, msg) }
func Conflict(msg string) *Error        { return New(CodeConflict, msg) }
func NotFound(msg string) *Error        { return New(CodeNotFound, msg) }
func Deactivated(msg string) *Error     { return New(CodeAccountDeactivated, msg) }

func InvalidTransition(from, to string) *Error {
	return New(CodeInvalidTransition, fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// HTTPStatus maps any error to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthenticated, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeForbidden, CodeAccountDeactivated:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the machine code, falling back to internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
