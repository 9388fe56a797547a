package models

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrDuplicate      = errors.New("document already exists")
	ErrRunInProgress  = errors.New("reconciliation already running")
	ErrMissingPayload = errors.New("event carries no document data")
)

// Kind maps an error to a short label used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrRunInProgress):
		return "in_progress"
	case errors.Is(err, ErrMissingPayload):
		return "missing_payload"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
