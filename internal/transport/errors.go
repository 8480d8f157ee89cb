package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PermanentDeliveryError marks a failure that will not succeed on retry
// (bad chat, forbidden, malformed request).
type PermanentDeliveryError struct {
	Err error
}

func (e *PermanentDeliveryError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent delivery error"
	}
	return fmt.Sprintf("permanent delivery error: %v", e.Err)
}

func (e *PermanentDeliveryError) Unwrap() error { return e.Err }

// TransientDeliveryError marks a failure worth retrying. RetryAfter carries the
// server-provided hint when there was one.
type TransientDeliveryError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientDeliveryError) Error() string {
	if e == nil || e.Err == nil {
		return "transient delivery error"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transient delivery error (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("transient delivery error: %v", e.Err)
}

func (e *TransientDeliveryError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentDeliveryError{Err: err}
}

func Transient(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &TransientDeliveryError{Err: err, RetryAfter: retryAfter}
}

// IsPermanent reports whether err must not be retried. Cancellation counts as
// permanent for retry purposes.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *PermanentDeliveryError
	return errors.As(err, &pe)
}

// RetryAfter returns the server hint carried by a transient error.
func RetryAfter(err error) (time.Duration, bool) {
	var te *TransientDeliveryError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}
