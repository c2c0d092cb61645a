package davsdk

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotFound     = errors.New("davsdk: resource not found")
	ErrUnauthorized = errors.New("davsdk: authentication failed")
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code int
	Path string
	Op   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("davsdk: %s %q: http %d", e.Op, e.Path, e.Code)
}

// IsRetryable reports whether err is a transient failure worth another
// attempt: network-level errors, timeouts, 408, 429 and 5xx responses.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 408, statusErr.Code == 429:
			return true
		case statusErr.Code >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unclassified errors from the transport (connection reset, DNS) are
	// treated as transient.
	return true
}
