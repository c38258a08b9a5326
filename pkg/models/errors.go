package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the workflow's failure kinds. HTTP handlers map these to
// status codes; services wrap them with context via fmt.Errorf and %w.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// InvalidTransitionError reports a state-machine rule violation on one of the
// two subsystem status axes.
type InvalidTransitionError struct {
	Axis    StatusAxis
	Current string
	Target  string
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s: %s", e.Axis, e.Current, e.Target, e.Reason)
}

// ValidationError reports a malformed payload or field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
