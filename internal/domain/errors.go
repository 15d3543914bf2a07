package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an AppError so callers can decide whether to render it
// to the user or to log and alert on it.
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindIneligible            ErrorKind = "ineligible"
	KindUpstreamUnavailable   ErrorKind = "upstream_unavailable"
	KindInternalInconsistency ErrorKind = "internal_inconsistency"
	KindAuth                  ErrorKind = "auth"
	KindInternal              ErrorKind = "internal"
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int       `json:"code"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Client reports whether the error is meant to be shown to the caller as-is.
func (e *AppError) Client() bool {
	switch e.Kind {
	case KindValidation, KindIneligible, KindAuth:
		return true
	}
	return false
}

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Kind: KindValidation, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Kind: KindAuth, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Kind: KindAuth, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindValidation, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Kind: KindValidation, Message: msg}
}

// ErrIneligible is returned when a policy rule refuses the operation:
// tenure too short, plan downgrade, insufficient balance.
func ErrIneligible(msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Kind: KindIneligible, Message: msg}
}

func ErrUpstream(msg string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Kind: KindUpstreamUnavailable, Message: msg, Err: err}
}

func ErrInconsistency(msg string) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Kind: KindInternalInconsistency, Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Kind: KindInternal, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == kind
}
