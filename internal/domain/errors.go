package domain

import (
	"errors"
	"fmt"
)

// Referential and concurrency errors. Callers branch on these; none of
// them is retryable.
var (
	ErrUnknownTrip        = errors.New("unknown trip")
	ErrUnknownReservation = errors.New("unknown reservation")
	ErrUnknownIncident    = errors.New("unknown incident")
	ErrSeatConflict       = errors.New("seat already reserved")
	ErrPermissionDenied   = errors.New("permission denied")
)

// ValidationError reports malformed or missing required input. It is
// never retried; the caller surfaces it to the user immediately.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field != "" && e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

// TransientError marks a failure worth retrying with backoff, such as a
// network or delivery problem. The durable write queue is the only
// component that retries.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	if e.Err == nil {
		return "transient failure"
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e TransientError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target TransientError
	return errors.As(err, &target)
}

// IsTerminal reports whether a mutation error must not be retried.
func IsTerminal(err error) bool {
	return err != nil && !IsTransient(err)
}
