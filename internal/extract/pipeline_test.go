package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"docextract/internal/capability"
	"docextract/internal/convert"
	"docextract/internal/janitor"
	"docextract/internal/ocr"
	"docextract/internal/pdf"
	"docextract/pkg/models"
)

// fakeReader returns a canned document.
type fakeReader struct {
	doc *pdf.Document
	err error
}

func (f *fakeReader) Read(path string) (*pdf.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

// fakeProber returns a canned capability report.
type fakeProber struct {
	available bool
}

func (f *fakeProber) Check() capability.Report {
	if f.available {
		return capability.Report{RasterizationAvailable: true, PdftoppmPath: "/usr/bin/pdftoppm"}
	}
	return capability.Report{
		Reasons:      []string{"pdftoppm not found in PATH"},
		InstallHints: []string{"Install poppler-utils"},
	}
}

// fakeRasterizer returns page images without touching disk.
type fakeRasterizer struct {
	pages []convert.PageImage
	err   error
	calls int
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdfPath, outDir, prefix string) ([]convert.PageImage, error) {
	f.calls++
	return f.pages, f.err
}

// scriptedEngine runs a response function per Recognize call.
type scriptedEngine struct {
	respond func(req ocr.Request) (ocr.Recognition, error)
}

func (s *scriptedEngine) Name() string { return "scripted" }
func (s *scriptedEngine) Recognize(ctx context.Context, req ocr.Request) (ocr.Recognition, error) {
	return s.respond(req)
}
func (s *scriptedEngine) Close() error { return nil }

func textDoc() *pdf.Document {
	dense := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit sed do ", 12))
	return &pdf.Document{
		Path:      "doc.pdf",
		PageCount: 1,
		Pages:     []pdf.PageText{{PageNumber: 1, Text: dense}},
		Text:      dense,
	}
}

func sparseDoc() *pdf.Document {
	return &pdf.Document{
		Path:      "scan.pdf",
		PageCount: 2,
		Pages: []pdf.PageText{
			{PageNumber: 1, Text: "Page 1 only"},
			{PageNumber: 2, Text: ""},
		},
		Text: "Page 1 only",
	}
}

func emptyDoc() *pdf.Document {
	return &pdf.Document{Path: "scan.pdf", PageCount: 2, Pages: []pdf.PageText{{PageNumber: 1}, {PageNumber: 2}}, Text: ""}
}

type pipelineFixture struct {
	pipeline *Pipeline
	janitor  *janitor.Janitor
	gate     *convert.Gate
	pool     *ocr.Pool
}

func newFixture(t *testing.T, reader pdf.Reader, prober Prober, rasterizer Rasterizer, respond func(ocr.Request) (ocr.Recognition, error)) *pipelineFixture {
	t.Helper()

	pool := ocr.NewPool(ocr.PoolConfig{
		Capacity:       2,
		AcquireTimeout: time.Second,
		IdleTimeout:    time.Minute,
		Factory: func() (ocr.Engine, error) {
			return &scriptedEngine{respond: respond}, nil
		},
	})
	t.Cleanup(pool.Shutdown)

	j := janitor.New(janitor.Limits{})
	gate := convert.NewGate(2, time.Second)

	p := New(Deps{
		Reader:     reader,
		Probe:      prober,
		Rasterizer: rasterizer,
		Pool:       pool,
		Gate:       gate,
		Janitor:    j,
		Telemetry:  NopTelemetry{},
	}, Config{
		Thresholds:      pdf.DefaultThresholds(),
		Languages:       []string{"eng"},
		RetryLanguages:  []string{"eng", "deu"},
		MinTextLength:   10,
		ConfidenceFloor: 40,
		TempDir:         t.TempDir(),
	})
	return &pipelineFixture{pipeline: p, janitor: j, gate: gate, pool: pool}
}

func okRecognition(req ocr.Request) (ocr.Recognition, error) {
	return ocr.Recognition{Text: "recognized text for " + req.ImagePath, Confidence: 80}, nil
}

// TestDirectExtraction verifies a text-based PDF skips OCR entirely.
func TestDirectExtraction(t *testing.T) {
	rasterizer := &fakeRasterizer{}
	f := newFixture(t, &fakeReader{doc: textDoc()}, &fakeProber{available: true}, rasterizer, okRecognition)

	result, err := f.pipeline.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Method != models.MethodDirect {
		t.Fatalf("method = %s, want direct", result.Method)
	}
	if result.Confidence != 100 {
		t.Fatalf("confidence = %v, want 100", result.Confidence)
	}
	if result.IsScannedPDF {
		t.Fatal("text-based PDF flagged as scanned")
	}
	if len(result.PageSummaries) != 1 || result.PageSummaries[0].PageNumber != 1 {
		t.Fatalf("page summaries = %+v", result.PageSummaries)
	}
	if rasterizer.calls != 0 {
		t.Fatal("direct path should not rasterize")
	}
}

// TestScannedExtractionViaOCR verifies the convert-and-OCR path end to end.
func TestScannedExtractionViaOCR(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: []convert.PageImage{
		{PageNumber: 1, Path: "page-1.png"},
		{PageNumber: 2, Path: "page-2.png"},
	}}
	f := newFixture(t, &fakeReader{doc: emptyDoc()}, &fakeProber{available: true}, rasterizer, okRecognition)

	result, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Method != models.MethodImageOCR {
		t.Fatalf("method = %s, want image-ocr", result.Method)
	}
	if !result.IsScannedPDF {
		t.Fatal("scanned PDF not flagged")
	}
	if result.Confidence != 80 {
		t.Fatalf("confidence = %v, want mean 80", result.Confidence)
	}
	if !strings.Contains(result.Text, "--- Page 1 ---") || !strings.Contains(result.Text, "--- Page 2 ---") {
		t.Fatalf("merged text missing page markers:\n%s", result.Text)
	}
	if result.Diagnostics.PagesAttempted != 2 || result.Diagnostics.PagesSucceeded != 2 {
		t.Fatalf("diagnostics = %+v", result.Diagnostics)
	}
	if result.Diagnostics.PartialProcessing {
		t.Fatal("full success flagged as partial")
	}
}

// TestRetryPassKeepsBetterResult verifies the second OCR pass wins when the
// first is too short, and that it widens languages and switches segmentation.
func TestRetryPassKeepsBetterResult(t *testing.T) {
	var requests []ocr.Request
	respond := func(req ocr.Request) (ocr.Recognition, error) {
		requests = append(requests, req)
		if req.SegmentationMode == psmAuto {
			return ocr.Recognition{Text: "short", Confidence: 30}, nil
		}
		return ocr.Recognition{Text: "a much longer recognized paragraph", Confidence: 75}, nil
	}
	rasterizer := &fakeRasterizer{pages: []convert.PageImage{{PageNumber: 1, Path: "page-1.png"}}}
	f := newFixture(t, &fakeReader{doc: emptyDoc()}, &fakeProber{available: true}, rasterizer, respond)

	result, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(result.Text, "a much longer recognized paragraph") {
		t.Fatalf("retry result not kept:\n%s", result.Text)
	}
	if len(requests) != 2 {
		t.Fatalf("%d recognize calls, want 2", len(requests))
	}
	if requests[1].SegmentationMode != psmSingleBlock {
		t.Fatalf("retry segmentation = %d, want %d", requests[1].SegmentationMode, psmSingleBlock)
	}
	if len(requests[1].Languages) != 2 {
		t.Fatalf("retry languages = %v, want widened set", requests[1].Languages)
	}
}

// TestPartialPageFailure verifies a failing page is recorded without aborting
// the document.
func TestPartialPageFailure(t *testing.T) {
	respond := func(req ocr.Request) (ocr.Recognition, error) {
		if strings.Contains(req.ImagePath, "page-2") {
			return ocr.Recognition{}, fmt.Errorf("engine choked")
		}
		return ocr.Recognition{Text: "a good long recognized page", Confidence: 90}, nil
	}
	rasterizer := &fakeRasterizer{pages: []convert.PageImage{
		{PageNumber: 1, Path: "page-1.png"},
		{PageNumber: 2, Path: "page-2.png"},
	}}
	f := newFixture(t, &fakeReader{doc: emptyDoc()}, &fakeProber{available: true}, rasterizer, respond)

	result, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Diagnostics.PagesSucceeded != 1 || result.Diagnostics.PagesAttempted != 2 {
		t.Fatalf("diagnostics = %+v", result.Diagnostics)
	}
	if !result.Diagnostics.PartialProcessing {
		t.Fatal("partial success not flagged")
	}
	if result.Confidence != 45 {
		t.Fatalf("confidence = %v, want mean of 90 and 0", result.Confidence)
	}
	if len(result.PageSummaries) != 2 || result.PageSummaries[1].Text != "" {
		t.Fatalf("failed page should be recorded empty: %+v", result.PageSummaries)
	}
}

// TestFallbackWhenRasterizationUnsupported verifies sparse direct text comes
// back at confidence 50 when the toolchain is missing.
func TestFallbackWhenRasterizationUnsupported(t *testing.T) {
	f := newFixture(t, &fakeReader{doc: sparseDoc()}, &fakeProber{available: false}, &fakeRasterizer{}, okRecognition)

	result, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Method != models.MethodDirectFallback {
		t.Fatalf("method = %s, want direct-fallback", result.Method)
	}
	if result.Confidence != 50 {
		t.Fatalf("confidence = %v, want 50", result.Confidence)
	}
	if !result.Diagnostics.FallbackUsed {
		t.Fatal("fallbackUsed not set")
	}
	if result.Text != "Page 1 only" {
		t.Fatalf("text = %q", result.Text)
	}
}

// TestFallbackWhenOCRFails verifies sparse direct text comes back at
// confidence 25 after OCR was attempted and failed on every page.
func TestFallbackWhenOCRFails(t *testing.T) {
	respond := func(req ocr.Request) (ocr.Recognition, error) {
		return ocr.Recognition{}, fmt.Errorf("unreadable scan")
	}
	rasterizer := &fakeRasterizer{pages: []convert.PageImage{{PageNumber: 1, Path: "page-1.png"}}}
	f := newFixture(t, &fakeReader{doc: sparseDoc()}, &fakeProber{available: true}, rasterizer, respond)

	result, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Method != models.MethodDirectFallback {
		t.Fatalf("method = %s, want direct-fallback", result.Method)
	}
	if result.Confidence != 25 {
		t.Fatalf("confidence = %v, want 25", result.Confidence)
	}
}

// TestOCRErrorWhenNoDirectText verifies total OCR failure with no direct text
// surfaces a typed OCRError with page counts.
func TestOCRErrorWhenNoDirectText(t *testing.T) {
	respond := func(req ocr.Request) (ocr.Recognition, error) {
		return ocr.Recognition{}, fmt.Errorf("unreadable scan")
	}
	rasterizer := &fakeRasterizer{pages: []convert.PageImage{
		{PageNumber: 1, Path: "page-1.png"},
		{PageNumber: 2, Path: "page-2.png"},
	}}
	f := newFixture(t, &fakeReader{doc: emptyDoc()}, &fakeProber{available: true}, rasterizer, respond)

	_, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	var ocrErr *OCRError
	if !errors.As(err, &ocrErr) {
		t.Fatalf("err = %v, want *OCRError", err)
	}
	if ocrErr.AttemptedPages != 2 || ocrErr.PagesSucceeded != 0 {
		t.Fatalf("ocrErr = %+v", ocrErr)
	}
}

// TestDependencyErrorWhenNoToolsAndNoText verifies the missing-toolchain
// error carries install hints.
func TestDependencyErrorWhenNoToolsAndNoText(t *testing.T) {
	f := newFixture(t, &fakeReader{doc: emptyDoc()}, &fakeProber{available: false}, &fakeRasterizer{}, okRecognition)

	_, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("err = %v, want ErrDependencyUnavailable", err)
	}
	var depErr *DependencyError
	if !errors.As(err, &depErr) || len(depErr.InstallHints) == 0 {
		t.Fatalf("err = %v, want *DependencyError with hints", err)
	}
}

// TestGateTimeoutFallsBack verifies gate saturation routes through fallback.
func TestGateTimeoutFallsBack(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: []convert.PageImage{{PageNumber: 1, Path: "page-1.png"}}}
	f := newFixture(t, &fakeReader{doc: sparseDoc()}, &fakeProber{available: true}, rasterizer, okRecognition)

	// Saturate the gate so the pipeline's acquire times out.
	slow := convert.NewGate(1, 30*time.Millisecond)
	if err := slow.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.pipeline.gate = slow

	result, err := f.pipeline.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Method != models.MethodDirectFallback || result.Confidence != 25 {
		t.Fatalf("method=%s confidence=%v, want direct-fallback at 25", result.Method, result.Confidence)
	}
	if rasterizer.calls != 0 {
		t.Fatal("rasterizer ran despite gate timeout")
	}
}

// TestParseFailureIsTerminal verifies an unreadable PDF fails the pipeline
// without a fallback result.
func TestParseFailureIsTerminal(t *testing.T) {
	readerErr := fmt.Errorf("%w: missing.pdf", pdf.ErrUnreadable)
	f := newFixture(t, &fakeReader{err: readerErr}, &fakeProber{available: true}, &fakeRasterizer{}, okRecognition)

	result, err := f.pipeline.Extract(context.Background(), "missing.pdf")
	if result != nil {
		t.Fatal("expected no result for unreadable PDF")
	}
	if !errors.Is(err, pdf.ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

// TestCleanupRunsOnEveryPath verifies no session resources stay tracked after
// success and after failure.
func TestCleanupRunsOnEveryPath(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: []convert.PageImage{{PageNumber: 1, Path: "page-1.png"}}}
	f := newFixture(t, &fakeReader{doc: emptyDoc()}, &fakeProber{available: true}, rasterizer, okRecognition)

	if _, err := f.pipeline.Extract(context.Background(), "scan.pdf"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := f.janitor.TrackedCount(); got != 0 {
		t.Fatalf("tracked = %d after success, want 0", got)
	}

	failing := func(req ocr.Request) (ocr.Recognition, error) {
		return ocr.Recognition{}, fmt.Errorf("unreadable scan")
	}
	f2 := newFixture(t, &fakeReader{doc: emptyDoc()}, &fakeProber{available: true}, rasterizer, failing)
	if _, err := f2.pipeline.Extract(context.Background(), "scan.pdf"); err == nil {
		t.Fatal("expected failure")
	}
	if got := f2.janitor.TrackedCount(); got != 0 {
		t.Fatalf("tracked = %d after failure, want 0", got)
	}
}

// TestSessionRecordsStages verifies stage records are appended in order and
// the session is finalized exactly once.
func TestSessionRecordsStages(t *testing.T) {
	s := NewSession("doc.pdf")
	s.RecordStage(StageRecord{Name: StageParse, Success: true})
	s.RecordStage(StageRecord{Name: StageClassify, Success: true})
	s.Finalize()
	s.RecordStage(StageRecord{Name: StageOCR, Success: true}) // dropped

	stages := s.Stages()
	if len(stages) != 2 {
		t.Fatalf("%d stages recorded, want 2", len(stages))
	}
	if stages[0].Name != StageParse || stages[1].Name != StageClassify {
		t.Fatalf("stage order = %v", stages)
	}
	if !s.Finalized() {
		t.Fatal("session not finalized")
	}
}
