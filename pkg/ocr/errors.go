package ocr

import (
	"errors"
	"fmt"
)

// Common OCR errors
var (
	// ErrUnavailable is returned when no recognition worker can run in this process,
	// e.g. the binary was built without an OCR backend.
	ErrUnavailable = errors.New("OCR is not available")

	// ErrEngineBusy is returned when a recognition is already in flight on the shared worker.
	ErrEngineBusy = errors.New("OCR engine is busy")

	// ErrEmptyImage is returned for a nil or zero-sized bitmap.
	ErrEmptyImage = errors.New("image has no pixels")

	// ErrRecognitionFailed matches every RecognitionError.
	ErrRecognitionFailed = errors.New("OCR processing failed")
)

// RecognitionError wraps a hard failure of the recognition worker.
type RecognitionError struct {
	// Op is the operation that failed (e.g., "Init", "Recognize").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// Is matches ErrRecognitionFailed as well as anything the wrapped error matches.
func (e *RecognitionError) Is(target error) bool {
	return target == ErrRecognitionFailed || errors.Is(e.Err, target)
}

// NewRecognitionError creates a new RecognitionError.
func NewRecognitionError(op string, err error, details string) *RecognitionError {
	return &RecognitionError{Op: op, Err: err, Details: details}
}

// WrapRecognitionError wraps err as a RecognitionError if it isn't already one.
func WrapRecognitionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var recErr *RecognitionError
	if errors.As(err, &recErr) {
		return err
	}

	return NewRecognitionError(op, err, details)
}
