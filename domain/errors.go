package domain

import "errors"

var (
	// ErrValidation marks malformed client input.
	ErrValidation = errors.New("validation error")

	ErrExperimentNotFound = errors.New("experiment not found")
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrExperimentNotActive is returned when assigning against an experiment
	// that is missing or not running.
	ErrExperimentNotActive = errors.New("experiment not found or not active")

	ErrNotDraft          = errors.New("experiment must be in draft status")
	ErrInvalidTransition = errors.New("invalid status transition")
)
