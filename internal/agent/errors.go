package agent

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyTask is returned when the task is blank after trimming.
	ErrEmptyTask = errors.New("task must not be empty")
	// ErrClosed is returned by operations on a closed client or finished chat.
	ErrClosed = errors.New("agent: client closed")
	// ErrNoSessionID is returned when the backend accepts a task without an id.
	ErrNoSessionID = errors.New("backend returned no session id")

	errStreamEnded = errors.New("stream ended without a terminal signal")
)

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsHTTPStatus reports whether err is an HTTPError with the given status.
func IsHTTPStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}
