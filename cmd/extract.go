package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"docextract/internal/capability"
	"docextract/internal/config"
	"docextract/internal/convert"
	"docextract/internal/extract"
	"docextract/internal/janitor"
	"docextract/internal/logger"
	"docextract/internal/ocr"
	"docextract/internal/pdf"
	"docextract/internal/summary"
	"docextract/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract text from a PDF document",
	Long: `Extract text from a PDF file.

The document is classified first: PDFs with a usable embedded text layer are
read directly, scanned PDFs are rasterized with pdftoppm and processed page
by page through a bounded pool of OCR workers. When rasterization or OCR is
not possible, whatever direct text exists is returned with reduced
confidence.

The OCR engine is selected with OCR_ENGINE: "tesseract" (default, local) or
"vision" (Google Cloud Vision, requires GOOGLE_APPLICATION_CREDENTIALS or
GOOGLE_CREDENTIALS).`,
	Example: `  # Extract text from invoice.pdf to stdout
  docextract extract invoice.pdf

  # Save extracted text to file
  docextract extract invoice.pdf -o extracted.txt

  # Include metadata and output as JSON
  docextract extract invoice.pdf --metadata --json -o result.json

  # Summarize the extracted text (requires OPENAI_API_KEY for ChatGPT,
  # falls back to a leading-sentence preview without one)
  docextract extract report.pdf --summarize

  # Process with custom timeout
  docextract extract large-document.pdf --timeout 600`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the JSON output structure when --json is used.
type ExtractOutput struct {
	Text          string               `json:"text"`
	Method        models.Method        `json:"method"`
	Confidence    float64              `json:"confidence"`
	IsScannedPDF  bool                 `json:"is_scanned_pdf"`
	PageSummaries []models.PageSummary `json:"page_summaries,omitempty"`
	Summary       string               `json:"summary,omitempty"`
	Diagnostics   *models.Diagnostics  `json:"diagnostics,omitempty"`
	FileName      string               `json:"file_name"`
	FileSize      int64                `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
	extractCmd.Flags().Bool("summarize", false, "Append a short summary of the extracted text")
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	summarize, _ := cmd.Flags().GetBool("summarize")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Bool("metadata", includeMetadata).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting extraction")

	fileInfo, err := validatePDFFile(pdfPath, log)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	pipeline, shutdown, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown()

	result, err := pipeline.Extract(ctx, pdfPath)
	if err != nil {
		return handleExtractError(err, log)
	}

	log.Info().
		Str("method", string(result.Method)).
		Float64("confidence", result.Confidence).
		Bool("scanned", result.IsScannedPDF).
		Int("text_length", len(result.Text)).
		Dur("duration", result.Diagnostics.TotalDuration).
		Msg("Extraction completed successfully")

	if summarize {
		result.Summary = summarizeText(ctx, cfg, result.Text, log)
	}

	return outputResults(result, fileInfo, outputPath, jsonOutput, includeMetadata, log)
}

// buildPipeline assembles the extraction pipeline from configuration. The
// returned shutdown function releases the worker pool and the janitor.
func buildPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*extract.Pipeline, func(), error) {
	factory, err := engineFactory(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	pool := ocr.NewPool(ocr.PoolConfig{
		Capacity:       cfg.MaxPoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		SweepInterval:  cfg.IdleTimeout / 2,
		Factory:        factory,
	})

	jan := janitor.New(janitor.Limits{
		MaxResourceCount: cfg.JanitorMaxResources,
		MaxTotalSize:     cfg.JanitorMaxTotalBytes,
		MaxResourceAge:   cfg.JanitorMaxResourceAge,
	})
	jan.StartSweeper(cfg.JanitorSweepInterval)

	pipeline := extract.New(extract.Deps{
		Reader:     pdf.NewReader(),
		Probe:      capability.New(),
		Rasterizer: convert.NewRasterizer(cfg.ConvertDPI),
		Pool:       pool,
		Gate:       convert.NewGate(cfg.MaxConcurrentConversions, cfg.ConversionTimeout),
		Janitor:    jan,
		Telemetry:  extract.NewLogTelemetry(),
	}, extract.Config{
		Thresholds: pdf.Thresholds{
			MinWords:        cfg.ClassifyMinWords,
			MinWordsPerPage: cfg.ClassifyMinWordsPerPage,
			MinCharsPerPage: cfg.ClassifyMinCharsPerPage,
		},
		Languages:       cfg.OCRLanguages,
		RetryLanguages:  cfg.OCRRetryLanguages,
		MinTextLength:   cfg.OCRMinTextLength,
		ConfidenceFloor: cfg.OCRConfidenceFloor,
	})

	shutdown := func() {
		pool.Shutdown()
		jan.Stop()
	}
	return pipeline, shutdown, nil
}

// engineFactory selects the pooled OCR engine per configuration.
func engineFactory(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Factory, error) {
	switch cfg.OCREngine {
	case "vision":
		hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
		if !hasCredentials {
			log.Error().Msg("Google Cloud credentials not configured")
			return nil, fmt.Errorf("Google Cloud credentials not configured for OCR_ENGINE=vision. Please set one of:\n\n" +
				"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
				"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
				"2. Export GOOGLE_CREDENTIALS with inline JSON:\n" +
				"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
				"3. Use Application Default Credentials (if gcloud is configured):\n" +
				"   gcloud auth application-default login")
		}
		return ocr.VisionFactory(ctx), nil
	default:
		return ocr.TesseractFactory(cfg.OCRLanguages), nil
	}
}

// summarizeText produces a best-effort summary. Failures are logged and the
// summary is simply omitted.
func summarizeText(ctx context.Context, cfg *config.Config, text string, log zerolog.Logger) string {
	var summarizer summary.Summarizer
	if cfg.OpenAIAPIKey != "" {
		summarizer = summary.NewChatGPTSummarizer(openai.NewClient(cfg.OpenAIAPIKey), summary.Config{
			Model: cfg.OpenAIModel,
		})
	} else {
		log.Debug().Msg("OPENAI_API_KEY not set, using extractive summary")
		summarizer = &summary.ExtractiveSummarizer{}
	}

	s, err := summarizer.Summarize(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("Summarization failed, omitting summary")
		return ""
	}
	return s
}

// validatePDFFile checks if the file exists, is readable, and appears to be a PDF
func validatePDFFile(pdfPath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("PDF file not found")
			return nil, fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("Permission denied accessing PDF file")
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", pdfPath).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", pdfPath)
	}

	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		log.Warn().
			Str("file", pdfPath).
			Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", pdfPath).
			Msg("PDF file is empty")
		return nil, fmt.Errorf("PDF file is empty: %s", pdfPath)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling extraction")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}

// handleExtractError provides user-friendly error messages for extraction failures
func handleExtractError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Extraction failed")

	var depErr *extract.DependencyError
	var ocrErr *extract.OCRError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("extraction timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("extraction was canceled")
	case errors.Is(err, pdf.ErrUnreadable):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity: %w", err)
	case errors.As(err, &depErr):
		return fmt.Errorf("scanned PDF cannot be processed, required tools are missing:\n  %s\n\nInstall:\n  %s",
			strings.Join(depErr.Reasons, "\n  "),
			strings.Join(depErr.InstallHints, "\n  "))
	case errors.As(err, &ocrErr):
		return fmt.Errorf("OCR failed on all %d pages and the document has no embedded text: %w",
			ocrErr.AttemptedPages, err)
	case errors.Is(err, ocr.ErrPoolExhausted):
		return fmt.Errorf("all OCR workers are busy. Retry later or raise OCR_MAX_POOL_SIZE: %w", err)
	default:
		return fmt.Errorf("extraction failed: %w", err)
	}
}

// outputResults formats and outputs the extraction result
func outputResults(result *models.ExtractionResult, fileInfo os.FileInfo, outputPath string, jsonOutput, includeMetadata bool, log zerolog.Logger) error {
	var output strings.Builder
	var outputData []byte
	var err error

	if jsonOutput {
		extractOutput := ExtractOutput{
			Text:          result.Text,
			Method:        result.Method,
			Confidence:    result.Confidence,
			IsScannedPDF:  result.IsScannedPDF,
			PageSummaries: result.PageSummaries,
			Summary:       result.Summary,
			FileName:      filepath.Base(fileInfo.Name()),
			FileSize:      fileInfo.Size(),
		}
		if includeMetadata {
			extractOutput.Diagnostics = &result.Diagnostics
		}

		outputData, err = json.MarshalIndent(extractOutput, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	} else {
		if includeMetadata {
			output.WriteString(fmt.Sprintf("=== Extraction Results for %s ===\n", filepath.Base(fileInfo.Name())))
			output.WriteString(fmt.Sprintf("File size: %d bytes\n", fileInfo.Size()))
			output.WriteString(fmt.Sprintf("Method: %s\n", result.Method))
			output.WriteString(fmt.Sprintf("Confidence: %.1f%%\n", result.Confidence))
			output.WriteString(fmt.Sprintf("Scanned PDF: %t\n", result.IsScannedPDF))
			if result.Diagnostics.PagesAttempted > 0 {
				output.WriteString(fmt.Sprintf("Pages OCRed: %d/%d\n",
					result.Diagnostics.PagesSucceeded, result.Diagnostics.PagesAttempted))
			}
			if result.Diagnostics.FallbackUsed {
				output.WriteString("Fallback: direct text returned after OCR path failed\n")
			}
			output.WriteString(fmt.Sprintf("Classification: %s\n", result.Diagnostics.ClassificationReason))
			output.WriteString(fmt.Sprintf("Processing time: %v\n", result.Diagnostics.TotalDuration))
			output.WriteString("\n=== Extracted Text ===\n\n")
		}

		output.WriteString(result.Text)

		if result.Summary != "" {
			output.WriteString("\n\n=== Summary ===\n\n")
			output.WriteString(result.Summary)
		}
		outputData = []byte(output.String())
	}

	if outputPath != "" {
		err = os.WriteFile(outputPath, outputData, 0644)
		if err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("Extraction results written to file")
	} else {
		_, err = os.Stdout.Write(outputData)
		if err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}

		if !jsonOutput {
			fmt.Println()
		}
	}

	return nil
}
