package extract

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline-level errors
var (
	// ErrDependencyUnavailable is returned when the rasterization toolchain
	// is missing and the document has no direct text to fall back on.
	ErrDependencyUnavailable = errors.New("rasterization toolchain unavailable and document has no extractable text")

	// ErrConversionFailed is returned when rasterization ran but produced no
	// usable output.
	ErrConversionFailed = errors.New("page rasterization failed")
)

// DependencyError carries the capability probe's diagnosis so callers can
// surface install hints to an operator.
type DependencyError struct {
	Reasons      []string
	InstallHints []string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrDependencyUnavailable.Error()
	}
	return fmt.Sprintf("%v: %s", ErrDependencyUnavailable, strings.Join(e.Reasons, "; "))
}

// Unwrap lets errors.Is match ErrDependencyUnavailable.
func (e *DependencyError) Unwrap() error { return ErrDependencyUnavailable }

// OCRError is returned when recognition failed for enough pages that no
// result is possible and the document had no direct text to fall back on.
type OCRError struct {
	// AttemptedPages is how many pages the pipeline tried to recognize.
	AttemptedPages int

	// PagesSucceeded is how many pages produced usable text.
	PagesSucceeded int

	// Err is the underlying cause (conversion failure, per-page engine
	// errors, pool exhaustion).
	Err error
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	return fmt.Sprintf("ocr failed: %d/%d pages succeeded: %v",
		e.PagesSucceeded, e.AttemptedPages, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OCRError) Unwrap() error { return e.Err }
