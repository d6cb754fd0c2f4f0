package models

import "time"

// Method identifies which extraction path produced a result.
type Method string

const (
	// MethodDirect means the embedded text layer of the PDF was used as-is.
	MethodDirect Method = "direct"

	// MethodImageOCR means pages were rasterized and recognized by the OCR pool.
	MethodImageOCR Method = "image-ocr"

	// MethodDirectFallback means OCR was unavailable or failed and the (sparse)
	// embedded text was returned instead, with reduced confidence.
	MethodDirectFallback Method = "direct-fallback"
)

// PageSummary holds the extracted text of a single page.
type PageSummary struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	WordCount  int    `json:"word_count"`
}

// Diagnostics carries processing metadata alongside the extracted text so
// callers can decide whether to retry or surface a degraded result.
type Diagnostics struct {
	SessionID            string        `json:"session_id"`
	ClassificationReason string        `json:"classification_reason"`
	PagesAttempted       int           `json:"pages_attempted"`
	PagesSucceeded       int           `json:"pages_succeeded"`
	FallbackUsed         bool          `json:"fallback_used"`
	PartialProcessing    bool          `json:"partial_processing"`
	ParseDuration        time.Duration `json:"parse_duration"`
	ConvertDuration      time.Duration `json:"convert_duration"`
	OCRDuration          time.Duration `json:"ocr_duration"`
	TotalDuration        time.Duration `json:"total_duration"`
}

// ExtractionResult is the final output of one extraction session. It is
// immutable once constructed.
type ExtractionResult struct {
	// Text is the full extracted text, pages joined in page-number order.
	Text string `json:"text"`

	// Confidence is a 0-100 trust score; 100 for direct text, the mean of
	// per-page OCR confidences for scanned documents, lower on fallback paths.
	Confidence float64 `json:"confidence"`

	// Method records which extraction path produced the text.
	Method Method `json:"method"`

	// IsScannedPDF reports the classification outcome.
	IsScannedPDF bool `json:"is_scanned_pdf"`

	// PageSummaries lists per-page text in page-number order.
	PageSummaries []PageSummary `json:"page_summaries"`

	// Summary is an optional short summary of the extracted text.
	Summary string `json:"summary,omitempty"`

	Diagnostics Diagnostics `json:"diagnostics"`
}
