package places

import (
	"errors"
	"fmt"

	"github.com/tastemap/tastemap-cli/internal/resilience"
)

// QuotaError is an over-quota response from the upstream API. It is
// retryable, but with the longer backoff the caller configures; once
// attempts are exhausted the owning cell fails.
type QuotaError struct {
	Status string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("places: quota exceeded (%s)", e.Status)
}

// NotFoundError is a permanent miss for a place or photo reference.
// It is never retried.
type NotFoundError struct {
	ID     string
	Status string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("places: %s not found (%s)", e.ID, e.Status)
}

// IsQuota reports whether the error chain contains a QuotaError.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsNotFound reports whether the error chain contains a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// retryable is the client's ShouldRetry policy: transient network failures
// and quota responses back off and retry; permanent misses return at once.
func retryable(err error) bool {
	return resilience.IsTransient(err) || IsQuota(err)
}
