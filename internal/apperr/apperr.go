// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package apperr defines the error taxonomy shared by the catalog core.
// Callers classify failures with errors.Is against the sentinels below;
// the HTTP layer maps each class to a distinct status code.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input (empty title, dangling category).
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied marks an ownership or role violation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound covers both true absence and unauthorized private access.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated is returned for writes without an actor.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrTransientTransport marks a remote store failure that may succeed on retry.
	ErrTransientTransport = errors.New("transient transport error")
)

// validationError carries a user-facing message while still matching
// ErrValidation via errors.Is.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrValidation }

// Validation returns an ErrValidation carrying msg as its message.
func Validation(msg string) error {
	return &validationError{msg: msg}
}

// Validationf is Validation with fmt.Sprintf formatting.
func Validationf(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// Transient marks err as ErrTransientTransport. Nil, cancellation and
// errors that already carry a class are returned unchanged.
func Transient(err error) error {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrTransientTransport),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrNotFound):
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientTransport, err)
}

// Message returns the text to show to an end user for err. Validation
// messages are passed through; every other class gets a fixed message so
// internal details never leak.
func Message(err error) string {
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		return ve.msg
	case errors.Is(err, ErrValidation):
		return "Invalid input."
	case errors.Is(err, ErrUnauthenticated):
		return "Sign in to continue."
	case errors.Is(err, ErrPermissionDenied):
		return "You are not allowed to do that."
	case errors.Is(err, ErrNotFound):
		return "Not found."
	case errors.Is(err, ErrTransientTransport):
		return "Service temporarily unavailable, try again."
	default:
		return "Internal Server Error"
	}
}
