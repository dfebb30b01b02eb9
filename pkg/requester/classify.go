package requester

import (
	"context"
	stderrors "errors"

	"github.com/aws/smithy-go"

	"github.com/aminofox/hlsplay/pkg/errors"
)

// StatusError is returned by a Fetcher when the origin responded with a
// non-2xx HTTP status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return errors.NewNetworkStatusError(e.Status).Error()
}

// TimeoutError is returned by a Fetcher (or surfaced from a context
// deadline) when the request exceeded its deadline.
type TimeoutError struct{}

func (e *TimeoutError) Error() string {
	return "request timed out"
}

// isRetryable classifies a fetch failure: timeouts, 5xx,
// 408, 429, and generic network errors are retryable; everything else,
// including an S3-origin API error that isn't one of those statuses, is
// terminal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, context.Canceled) {
		// Aborts are terminal, never retried.
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeoutErr *TimeoutError
	if stderrors.As(err, &timeoutErr) {
		return true
	}

	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		s := statusErr.Status
		return s >= 500 || s == 408 || s == 429
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError", "Throttling":
			return true
		default:
			return false
		}
	}

	var netErr interface{ Timeout() bool }
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// An unclassified error from a plain network-layer failure (connection
	// refused, DNS failure, reset) is treated as retryable.
	return true
}
