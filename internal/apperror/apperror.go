// Package apperror defines the error vocabulary shared by every layer.
//
// Each AppError wraps one of the sentinel errors below so callers can branch
// with errors.Is without caring which layer produced the failure. The socket
// protocol and the HTTP handlers both translate these into their own wire
// formats; the stores and services never know about either.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrExists        = errors.New("already exists")
	ErrTypeViolation = errors.New("type violation")
	ErrPersistence   = errors.New("persistence failed")
)

type AppError struct {
	Err     error  // sentinel
	Message string // human-readable
	Field   string // optional: field or key causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized reports a missing or incomplete identity.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// AlreadyExists is returned when an init-style operation targets a key that
// is already present.
func AlreadyExists(resource, key string) *AppError {
	return &AppError{
		Err:     ErrExists,
		Message: fmt.Sprintf("%s already exists with key %s", resource, key),
		Field:   key,
	}
}

// TypeViolation is returned when an operation is applied to a key of the
// wrong classification, e.g. a durable write against a memory-only stat.
func TypeViolation(key, actual, operation string) *AppError {
	return &AppError{
		Err:     ErrTypeViolation,
		Message: fmt.Sprintf("%s is a %s key and cannot be used with %s", key, actual, operation),
		Field:   key,
	}
}

// Persistence wraps a durable-storage failure that aborted an operation
// before any in-memory state changed.
func Persistence(operation string, err error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrPersistence, err),
		Message: fmt.Sprintf("%s: durable write failed", operation),
	}
}
