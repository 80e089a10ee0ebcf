package bdr

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-2xx HTTP response. 4xx statuses surface
// uninterpreted; callers decide what a 403 or 404 means for them.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bdr request: http %d: %s", e.StatusCode, e.URL)
}

// IsForbidden reports whether err is an HTTP 403 response. Forbidden is
// never retried: the server answered, and asking again will not change
// its mind.
func IsForbidden(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err is an HTTP 404 response.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether another attempt may help. Server-side 5xx
// and transport failures qualify; every 4xx is an answer, not a fault.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
