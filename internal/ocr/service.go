// Package ocr provides the OCR engine contract and the bounded worker pool
// that manages stateful engine instances.
//
// Engine instances carry loaded language models and are expensive to create,
// so the pipeline never constructs them per request. Instead it acquires a
// pooled worker, runs recognition, and releases the worker for the next page.
//
// Two engines are provided:
//   - Tesseract (default): local recognition via gosseract, one persistent
//     client per pool worker.
//   - Google Cloud Vision: remote recognition, one ImageAnnotatorClient per
//     pool worker. Requires GOOGLE_APPLICATION_CREDENTIALS or
//     GOOGLE_CREDENTIALS in the environment.
package ocr

import "context"

// Request describes a single page image submitted for recognition.
type Request struct {
	// ImagePath is the rasterized page image on disk.
	ImagePath string

	// Languages lists trained-data language hints (e.g., "eng", "deu").
	// Empty means the engine keeps its current language set.
	Languages []string

	// SegmentationMode selects the page segmentation strategy for engines
	// that support one (Tesseract PSM values). Zero means engine default.
	SegmentationMode int
}

// Recognition is the outcome of one recognition call.
type Recognition struct {
	// Text is the recognized text, trimmed of surrounding whitespace.
	Text string

	// Confidence is the mean per-word confidence, 0-100. Zero when the
	// engine reports no confidence information.
	Confidence float64
}

// Engine is the OCR provider contract wrapped by pool workers.
type Engine interface {
	// Name identifies the backing provider (e.g., "tesseract", "vision").
	Name() string

	// Recognize runs OCR on a single page image.
	Recognize(ctx context.Context, req Request) (Recognition, error)

	// Close releases the engine's loaded models or remote connection.
	Close() error
}

// Factory constructs a fresh engine instance for a new pool worker.
type Factory func() (Engine, error)
