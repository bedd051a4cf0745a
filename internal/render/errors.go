package render

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed is returned when the render request could not be sent or
	// its response could not be read.
	ErrFetchFailed = errors.New("render request failed")

	// ErrTimeout is returned when the renderer did not answer within the
	// configured timeout.
	ErrTimeout = errors.New("render request timed out")

	// ErrUnexpectedResponse is returned for a non-200 status or a content type
	// other than application/pdf.
	ErrUnexpectedResponse = errors.New("unexpected render response")

	// ErrNotPDF is returned when a 200 application/pdf response does not start
	// with a PDF header.
	ErrNotPDF = errors.New("render response is not a PDF document")
)

// FetchError wraps errors with the context of the render call.
type FetchError struct {
	// Op is the operation that failed (e.g., "Render").
	Op string

	// Err is the underlying error.
	Err error

	// Endpoint is the renderer URL.
	Endpoint string

	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int

	// Details carries the decoded, truncated response body or other context.
	Details string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("render: %s %s failed", e.Op, e.Endpoint)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v: %s", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *FetchError) Unwrap() error {
	return e.Err
}
