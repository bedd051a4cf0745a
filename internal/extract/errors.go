package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when pdftoppm or pdftotext cannot be found.
	ErrToolNotFound = errors.New("required tool not found")

	// ErrExtractionFailed is returned when a page could not be rasterized or
	// its text could not be extracted.
	ErrExtractionFailed = errors.New("page extraction failed")

	// ErrInvalidDocument is returned when the rendered payload cannot be
	// parsed as a PDF or lacks a requested page.
	ErrInvalidDocument = errors.New("invalid rendered document")
)

// ExtractionError wraps errors with the page and tool that failed.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "RasterizePage", "PageText").
	Op string

	// Page is the 1-based page number, zero for whole-document operations.
	Page int

	// Err is the underlying error.
	Err error

	// Details carries the tool's stderr or other context.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	where := e.Op
	if e.Page > 0 {
		where = fmt.Sprintf("%s page %d", e.Op, e.Page)
	}
	if e.Details != "" {
		return fmt.Sprintf("extract: %s failed: %s: %v", where, e.Details, e.Err)
	}
	return fmt.Sprintf("extract: %s failed: %v", where, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
