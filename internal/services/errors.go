// Package services defines the business logic of the tutoring backend.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks a request that failed validation. Callers wrap it
// with the offending field via invalid().
var ErrInvalidInput = errors.New("invalid input")

// Lookup errors. A record owned by another tutor is reported the same way
// as a missing one.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrTopicNotFound       = errors.New("topic not found")
	ErrMemNotFound         = errors.New("mem not found")
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrAvatarThemeNotFound = errors.New("avatar theme not found")

	// ErrNotParticipant is returned when scoring a student who never joined.
	ErrNotParticipant = errors.New("student is not a participant")
)

// Conflict errors.
var (
	// ErrInvalidTransition is returned when an assignment or invoice cannot
	// move to the requested status from its current one.
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrEmailTaken     = errors.New("email already registered")
	ErrTopicExists    = errors.New("topic already exists")
	ErrAlreadyJoined  = errors.New("student already joined")
	ErrInvoiceSettled = errors.New("invoice is not payable")
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrUnauthorized       = errors.New("unauthorized")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
