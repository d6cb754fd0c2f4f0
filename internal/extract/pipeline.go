// Package extract orchestrates the document extraction pipeline: parse,
// classify, direct text or rasterize-and-OCR under concurrency limits,
// fallback when the preferred path fails, and cleanup of every temporary
// resource the session created.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"docextract/internal/capability"
	"docextract/internal/convert"
	"docextract/internal/janitor"
	"docextract/internal/logger"
	"docextract/internal/ocr"
	"docextract/internal/pdf"
	"docextract/pkg/models"
)

// Fallback confidence values. Direct text is trusted fully; a fallback result
// is worth less, and less still when OCR actually ran and failed.
const (
	confidenceDirect          = 100
	confidenceFallbackNoTools = 50
	confidenceFallbackOCRFail = 25
)

// Tesseract page segmentation modes used for the two recognition passes.
const (
	psmAuto        = 3
	psmSingleBlock = 6
)

// Rasterizer renders PDF pages to images on disk.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir, prefix string) ([]convert.PageImage, error)
}

// Prober reports whether the rasterization toolchain is installed.
type Prober interface {
	Check() capability.Report
}

// Config tunes the pipeline's extraction behaviour.
type Config struct {
	Thresholds pdf.Thresholds

	// Languages is the language set for the first OCR pass.
	Languages []string

	// RetryLanguages is the widened set for the retry pass.
	RetryLanguages []string

	// MinTextLength and ConfidenceFloor decide whether a first OCR pass is
	// good enough or the page deserves a retry.
	MinTextLength   int
	ConfidenceFloor float64

	// TempDir is the base directory for per-session rasterization output.
	// Empty means the OS default.
	TempDir string
}

// Pipeline runs extraction sessions. It owns none of its collaborators; the
// pool, gate, and janitor are process-wide and shared across concurrent
// sessions.
type Pipeline struct {
	reader     pdf.Reader
	probe      Prober
	rasterizer Rasterizer
	pool       *ocr.Pool
	gate       *convert.Gate
	janitor    *janitor.Janitor
	telemetry  Telemetry
	cfg        Config
	log        zerolog.Logger
}

// Deps wires the pipeline's collaborators.
type Deps struct {
	Reader     pdf.Reader
	Probe      Prober
	Rasterizer Rasterizer
	Pool       *ocr.Pool
	Gate       *convert.Gate
	Janitor    *janitor.Janitor
	Telemetry  Telemetry
}

// New builds a pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if deps.Telemetry == nil {
		deps.Telemetry = NopTelemetry{}
	}
	if cfg.MinTextLength == 0 {
		cfg.MinTextLength = 20
	}
	if cfg.ConfidenceFloor == 0 {
		cfg.ConfidenceFloor = 40
	}
	return &Pipeline{
		reader:     deps.Reader,
		probe:      deps.Probe,
		rasterizer: deps.Rasterizer,
		pool:       deps.Pool,
		gate:       deps.Gate,
		janitor:    deps.Janitor,
		telemetry:  deps.Telemetry,
		cfg:        cfg,
		log:        logger.WithComponent("pipeline"),
	}
}

// Extract runs one extraction session over the PDF at pdfPath. It always
// triggers cleanup of the session's temporary resources before returning,
// on both success and failure paths.
func (p *Pipeline) Extract(ctx context.Context, pdfPath string) (*models.ExtractionResult, error) {
	session := NewSession(pdfPath)
	p.telemetry.SessionStarted(session.ID, pdfPath)
	start := time.Now()

	result, err := p.run(ctx, session)

	// CLEANUP runs on every exit path.
	p.runStage(session, StageCleanup, func() error {
		cleaned := p.janitor.CleanupBySession(session.ID)
		if cleaned > 0 {
			p.log.Debug().
				Str("session_id", session.ID).
				Int("cleaned", cleaned).
				Msg("Reclaimed session resources")
		}
		return nil
	})
	session.Finalize()

	if result != nil {
		result.Diagnostics.SessionID = session.ID
		result.Diagnostics.TotalDuration = time.Since(start)
	}
	p.telemetry.SessionFinished(session.ID, result, err)
	return result, err
}

// run drives START -> PARSE -> CLASSIFY -> {DIRECT | CONVERT_AND_OCR} ->
// [FALLBACK]; CLEANUP is handled by Extract.
func (p *Pipeline) run(ctx context.Context, session *Session) (*models.ExtractionResult, error) {
	var doc *pdf.Document

	// PARSE: terminal on failure.
	parseDur, err := p.runStage(session, StageParse, func() error {
		var readErr error
		doc, readErr = p.reader.Read(session.PDFPath)
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", session.PDFPath, err)
	}
	session.PageCount = doc.PageCount

	// CLASSIFY: pure computation, cannot fail.
	var classification pdf.Classification
	p.runStage(session, StageClassify, func() error {
		classification = pdf.Classify(doc.Text, doc.PageCount, p.cfg.Thresholds)
		return nil
	})
	p.log.Info().
		Str("session_id", session.ID).
		Bool("scanned", classification.IsScanned).
		Str("reason", classification.Reason).
		Int("pages", doc.PageCount).
		Int("words", classification.WordCount).
		Msg("Classified document")

	if !classification.IsScanned {
		return p.direct(session, doc, classification, parseDur), nil
	}
	return p.convertAndOCR(ctx, session, doc, classification, parseDur)
}

// direct returns the embedded text layer as the result. Document text is
// trusted, so confidence is the maximum value.
func (p *Pipeline) direct(session *Session, doc *pdf.Document, c pdf.Classification, parseDur time.Duration) *models.ExtractionResult {
	var pages []models.PageSummary
	p.runStage(session, StageDirect, func() error {
		pages = pageSummariesFromDirect(doc.Pages, doc.Text)
		return nil
	})

	return &models.ExtractionResult{
		Text:          doc.Text,
		Confidence:    confidenceDirect,
		Method:        models.MethodDirect,
		IsScannedPDF:  false,
		PageSummaries: pages,
		Diagnostics: models.Diagnostics{
			ClassificationReason: c.Reason,
			ParseDuration:        parseDur,
		},
	}
}

// ocrOutcome aggregates what the scanned path achieved before a fallback
// decision has to be made.
type ocrOutcome struct {
	attempted int
	succeeded int
	cause     error
}

// convertAndOCR is the scanned path: probe, gate, rasterize, per-page pooled
// OCR with one retry, merge. Any dead end routes through fallback.
func (p *Pipeline) convertAndOCR(ctx context.Context, session *Session, doc *pdf.Document, c pdf.Classification, parseDur time.Duration) (*models.ExtractionResult, error) {
	report := p.probe.Check()
	if !report.RasterizationAvailable {
		p.log.Warn().
			Str("session_id", session.ID).
			Strs("reasons", report.Reasons).
			Msg("Rasterization unavailable; falling back")
		return p.fallback(session, doc, c, parseDur, confidenceFallbackNoTools, ocrOutcome{
			cause: &DependencyError{Reasons: report.Reasons, InstallHints: report.InstallHints},
		})
	}

	// Conversion gate: bounded concurrency with its own timeout.
	if err := p.gate.Acquire(ctx); err != nil {
		p.log.Warn().Err(err).Str("session_id", session.ID).Msg("Conversion gate not acquired; falling back")
		return p.fallback(session, doc, c, parseDur, confidenceFallbackOCRFail, ocrOutcome{
			cause: fmt.Errorf("%w: %v", ErrConversionFailed, err),
		})
	}
	defer p.gate.Release()

	// Per-session scratch directory, registered before any page lands in it.
	outDir, err := os.MkdirTemp(p.cfg.TempDir, "docextract-"+session.shortID()+"-")
	if err != nil {
		return nil, fmt.Errorf("create session temp dir: %w", err)
	}
	p.janitor.Register(outDir, janitor.KindDirectory, session.ID)

	var pages []convert.PageImage
	convDur, err := p.runStage(session, StageConvert, func() error {
		var rasterErr error
		pages, rasterErr = p.rasterizer.Rasterize(ctx, session.PDFPath, outDir, "page")
		for _, page := range pages {
			p.janitor.Register(page.Path, janitor.KindImage, session.ID)
		}
		return rasterErr
	})
	if err != nil {
		return p.fallback(session, doc, c, parseDur, confidenceFallbackOCRFail, ocrOutcome{
			cause: fmt.Errorf("%w: %v", ErrConversionFailed, err),
		})
	}

	ocrStart := time.Now()
	summaries, confidences, outcome := p.recognizePages(ctx, session, pages)
	ocrDur := time.Since(ocrStart)

	if outcome.succeeded == 0 {
		return p.fallback(session, doc, c, parseDur, confidenceFallbackOCRFail, outcome)
	}

	var sum float64
	for _, conf := range confidences {
		sum += conf
	}

	return &models.ExtractionResult{
		Text:          MergePages(summaries),
		Confidence:    sum / float64(len(confidences)),
		Method:        models.MethodImageOCR,
		IsScannedPDF:  true,
		PageSummaries: summaries,
		Diagnostics: models.Diagnostics{
			ClassificationReason: c.Reason,
			PagesAttempted:       outcome.attempted,
			PagesSucceeded:       outcome.succeeded,
			PartialProcessing:    outcome.succeeded < outcome.attempted,
			ParseDuration:        parseDur,
			ConvertDuration:      convDur,
			OCRDuration:          ocrDur,
		},
	}, nil
}

// recognizePages OCRs every page image through the pool. Pages are processed
// independently; a page failure is recorded (empty text, zero confidence)
// rather than aborting the document. Workers are released before the next
// page begins. Summaries come back sorted by page number.
func (p *Pipeline) recognizePages(ctx context.Context, session *Session, pages []convert.PageImage) ([]models.PageSummary, []float64, ocrOutcome) {
	summaries := make([]models.PageSummary, 0, len(pages))
	confidences := make([]float64, 0, len(pages))
	outcome := ocrOutcome{attempted: len(pages)}

	p.runStage(session, StageOCR, func() error {
		for _, page := range pages {
			rec, err := p.recognizePage(ctx, page)
			if err != nil || rec.Text == "" {
				if err != nil {
					outcome.cause = err
					p.log.Warn().
						Err(err).
						Str("session_id", session.ID).
						Int("page", page.PageNumber).
						Msg("Page recognition failed")
				}
				summaries = append(summaries, models.PageSummary{PageNumber: page.PageNumber})
				confidences = append(confidences, 0)
				continue
			}
			outcome.succeeded++
			summaries = append(summaries, models.PageSummary{
				PageNumber: page.PageNumber,
				Text:       rec.Text,
				WordCount:  len(splitWords(rec.Text)),
			})
			confidences = append(confidences, rec.Confidence)
		}
		if outcome.succeeded == 0 {
			if outcome.cause == nil {
				outcome.cause = ocr.ErrRecognitionFailed
			}
			return outcome.cause
		}
		return nil
	})

	// The rasterizer already sorts, but OCR results must be in page order
	// regardless of how pages completed.
	sortSummaries(summaries, confidences)
	return summaries, confidences, outcome
}

// recognizePage runs one page through a pooled worker: a first pass with the
// standard language set, and when the result is too short or too uncertain, a
// retry with the widened set and an alternate segmentation mode. The better
// pass wins.
func (p *Pipeline) recognizePage(ctx context.Context, page convert.PageImage) (ocr.Recognition, error) {
	worker, err := p.pool.Acquire(ctx)
	if err != nil {
		return ocr.Recognition{}, err
	}
	defer p.pool.Release(worker)

	first, firstErr := worker.Recognize(ctx, ocr.Request{
		ImagePath:        page.Path,
		Languages:        p.cfg.Languages,
		SegmentationMode: psmAuto,
	})
	if firstErr == nil && len(first.Text) >= p.cfg.MinTextLength && first.Confidence >= p.cfg.ConfidenceFloor {
		return first, nil
	}

	second, secondErr := worker.Recognize(ctx, ocr.Request{
		ImagePath:        page.Path,
		Languages:        p.cfg.RetryLanguages,
		SegmentationMode: psmSingleBlock,
	})
	if firstErr != nil && secondErr != nil {
		return ocr.Recognition{}, firstErr
	}
	if firstErr != nil {
		return second, nil
	}
	if secondErr != nil {
		return first, nil
	}
	if len(second.Text) > len(first.Text) || second.Confidence > first.Confidence {
		return second, nil
	}
	return first, nil
}

// fallback implements the FALLBACK state: return whatever direct text exists
// with reduced confidence, or fail with a typed error when there is nothing
// to return.
func (p *Pipeline) fallback(session *Session, doc *pdf.Document, c pdf.Classification, parseDur time.Duration, confidence float64, outcome ocrOutcome) (*models.ExtractionResult, error) {
	var result *models.ExtractionResult
	var failErr error

	p.runStage(session, StageFallback, func() error {
		if doc.Text == "" {
			var depErr *DependencyError
			if errors.As(outcome.cause, &depErr) {
				failErr = depErr
			} else {
				failErr = &OCRError{
					AttemptedPages: outcome.attempted,
					PagesSucceeded: outcome.succeeded,
					Err:            outcome.cause,
				}
			}
			return failErr
		}

		result = &models.ExtractionResult{
			Text:          doc.Text,
			Confidence:    confidence,
			Method:        models.MethodDirectFallback,
			IsScannedPDF:  true,
			PageSummaries: pageSummariesFromDirect(doc.Pages, doc.Text),
			Diagnostics: models.Diagnostics{
				ClassificationReason: c.Reason,
				PagesAttempted:       outcome.attempted,
				PagesSucceeded:       outcome.succeeded,
				FallbackUsed:         true,
				PartialProcessing:    true,
				ParseDuration:        parseDur,
			},
		}
		return nil
	})

	if failErr != nil {
		return nil, failErr
	}
	p.log.Info().
		Str("session_id", session.ID).
		Float64("confidence", confidence).
		Msg("Returning direct-fallback result")
	return result, nil
}

// runStage executes fn as a named pipeline stage, recording timing and
// outcome on the session and emitting telemetry.
func (p *Pipeline) runStage(session *Session, name string, fn func() error) (time.Duration, error) {
	started := time.Now()
	p.telemetry.StageStarted(session.ID, name)

	err := fn()

	ended := time.Now()
	rec := StageRecord{
		Name:      name,
		StartedAt: started,
		EndedAt:   ended,
		Success:   err == nil,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	session.RecordStage(rec)
	p.telemetry.StageEnded(session.ID, name, err == nil, ended.Sub(started), rec.ErrorMessage)
	return ended.Sub(started), err
}
