package ocr

import (
	"errors"
	"fmt"
)

// Common OCR and pool errors
var (
	// ErrPoolExhausted is returned when no worker frees up within the acquire
	// timeout. Callers may retry.
	ErrPoolExhausted = errors.New("worker pool exhausted: no worker became available before the timeout")

	// ErrWorkerInit is returned when a new engine instance fails to load.
	// The pool size is unchanged and callers may retry.
	ErrWorkerInit = errors.New("failed to initialize OCR engine instance")

	// ErrPoolClosed is returned when acquiring from a pool after Shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")

	// ErrRecognitionFailed is returned when the engine processed the image
	// but produced no usable output.
	ErrRecognitionFailed = errors.New("recognition produced no usable output")
)

// OCRError wraps errors with additional context about the failing operation.
type OCRError struct {
	// Op is the operation that failed (e.g., "Acquire", "Recognize").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}
