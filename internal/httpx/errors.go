package httpx

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification. Use errors.Is to
// check; engine.Kind wraps these into the updater's own error taxonomy.
var (
	ErrBadRequest  = errors.New("httpx: bad request")
	ErrNotFound    = errors.New("httpx: not found")
	ErrThrottled   = errors.New("httpx: throttled")
	ErrServerError = errors.New("httpx: server error")
	ErrRangeFailed = errors.New("httpx: range not satisfiable")
)

// StatusError wraps a sentinel error with the HTTP status code and
// response body for debugging, mirroring a GraphError shape.
type StatusError struct {
	StatusCode int
	URL        string
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: HTTP %d for %s: %s", e.StatusCode, e.URL, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error. Returns
// nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeFailed
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be
// retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
