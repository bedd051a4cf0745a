package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the calibration file does not exist.
	ErrNotFound = errors.New("calibration file not found")

	// ErrInvalidConfig is returned when the calibration file cannot be parsed
	// or a field fails validation.
	ErrInvalidConfig = errors.New("invalid calibration configuration")

	// ErrUnsupportedFormat is returned for file extensions other than
	// .json, .yaml and .yml.
	ErrUnsupportedFormat = errors.New("unsupported calibration file format")
)

// FieldError names the configuration field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports every FieldError as an ErrInvalidConfig.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func fieldError(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}
