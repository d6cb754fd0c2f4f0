package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine implements Engine using a persistent gosseract client.
// Unlike one-shot usage, the client (and its loaded language models) lives for
// the lifetime of the owning pool worker.
type TesseractEngine struct {
	client *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract engine preloaded with the given
// language set.
func NewTesseractEngine(languages []string) (*TesseractEngine, error) {
	const op = "NewTesseractEngine"

	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, NewOCRError(op, ErrWorkerInit, err.Error())
		}
	}
	return &TesseractEngine{client: client}, nil
}

// TesseractFactory returns a pool Factory producing Tesseract engines.
func TesseractFactory(languages []string) Factory {
	return func() (Engine, error) {
		return NewTesseractEngine(languages)
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs OCR on a page image on disk.
func (e *TesseractEngine) Recognize(ctx context.Context, req Request) (Recognition, error) {
	const op = "Recognize"

	select {
	case <-ctx.Done():
		return Recognition{}, WrapOCRError(op, ctx.Err(), "context canceled before recognition")
	default:
	}

	if err := e.client.SetImage(req.ImagePath); err != nil {
		return Recognition{}, NewOCRError(op, err, "set image "+req.ImagePath)
	}
	if len(req.Languages) > 0 {
		if err := e.client.SetLanguage(req.Languages...); err != nil {
			return Recognition{}, NewOCRError(op, err, "set languages "+strings.Join(req.Languages, "+"))
		}
	}
	if req.SegmentationMode > 0 {
		if err := e.client.SetPageSegMode(gosseract.PageSegMode(req.SegmentationMode)); err != nil {
			return Recognition{}, NewOCRError(op, err, "set page segmentation mode")
		}
	}

	text, err := e.client.Text()
	if err != nil {
		return Recognition{}, NewOCRError(op, err, "recognize "+req.ImagePath)
	}

	return Recognition{
		Text:       strings.TrimSpace(text),
		Confidence: e.meanWordConfidence(),
	}, nil
}

// meanWordConfidence averages Tesseract's per-word confidences (0-100).
func (e *TesseractEngine) meanWordConfidence() float64 {
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

// Close releases the Tesseract client and its loaded models.
func (e *TesseractEngine) Close() error {
	return e.client.Close()
}
