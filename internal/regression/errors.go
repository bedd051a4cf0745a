package regression

import (
	"errors"
	"fmt"
	"strings"

	"pdfregress/internal/invariants"
)

var (
	// ErrNoBaseline is returned by Test when the baseline directory does not
	// exist. A baseline is never created implicitly.
	ErrNoBaseline = errors.New("baseline directory missing")

	// ErrInvariantViolation is returned when at least one text invariant is
	// false. Calibrate writes nothing in that case.
	ErrInvariantViolation = errors.New("text invariant violation")

	// ErrRegressionDetected is returned by Report.Err when at least one page
	// is missing its baseline or drifted beyond the allowed maximum.
	ErrRegressionDetected = errors.New("PDF regression failed")

	// ErrFixture is returned when the fixture cannot be read.
	ErrFixture = errors.New("fixture unreadable")
)

// WorkflowError records which workflow stage aborted.
type WorkflowError struct {
	// Mode is "calibrate" or "test".
	Mode string

	// Stage is the step that failed (e.g., "render", "text", "rasterize").
	Stage string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Mode, e.Stage, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// wrapWorkflowError wraps err unless it already carries a stage.
func wrapWorkflowError(mode, stage string, err error) error {
	if err == nil {
		return nil
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		return err
	}
	return &WorkflowError{Mode: mode, Stage: stage, Err: err}
}

// InvariantError lists every invariant that failed.
type InvariantError struct {
	Results invariants.Results
}

func (e *InvariantError) Error() string {
	return "Text invariant failure(s): " + strings.Join(e.Results.Failed(), ", ")
}

// Is reports InvariantError as ErrInvariantViolation.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// RegressionError lists the per-page failures collected by a test run.
type RegressionError struct {
	Failures []string
}

func (e *RegressionError) Error() string {
	return ErrRegressionDetected.Error() + ": " + strings.Join(e.Failures, "; ")
}

// Unwrap returns ErrRegressionDetected.
func (e *RegressionError) Unwrap() error {
	return ErrRegressionDetected
}
