package uploader

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable      = errors.New("server unavailable")
	ErrIncomplete       = errors.New("server reports upload incomplete")
	ErrChecksumMismatch = errors.New("delivered file does not match local file")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500
}
