package notify

import (
	"context"
	"errors"
)

// Sender delivers one rendered message to one recipient. Implementations
// classify failures with Transient or Permanent; anything else is treated as
// transient.
type Sender interface {
	Send(ctx context.Context, recipient, message string) error
}

type sendError struct {
	err       error
	permanent bool
}

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

// Transient marks an error as retryable (network trouble, 5xx from the
// gateway, rate limiting).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &sendError{err: err}
}

// Permanent marks an error as not worth retrying (bad recipient, rejected
// payload, misconfiguration).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &sendError{err: err, permanent: true}
}

func IsPermanent(err error) bool {
	var se *sendError
	return errors.As(err, &se) && se.permanent
}
