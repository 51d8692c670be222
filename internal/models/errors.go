package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input. Surfaced to the caller, never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing bin, user or alert.
	ErrNotFound = errors.New("not found")
	// ErrTransientStore marks store unavailability. The triggering event may be retried.
	ErrTransientStore = errors.New("transient store error")
	// ErrInvariantViolation marks more than one unacknowledged alert for a bin.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrUnauthenticated marks a request without a valid caller.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Transient wraps a store failure so callers can classify it with errors.Is.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}

// NotFound builds an ErrNotFound for the given entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// IsRetryable reports whether the failure may succeed on redelivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
