package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"docextract/internal/logger"
)

// ErrNoPagesProduced is returned when pdftoppm ran but left no page images on
// disk.
var ErrNoPagesProduced = errors.New("rasterization produced no page images")

// PageImage is one rasterized page on disk.
type PageImage struct {
	PageNumber int
	Path       string
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
	}
	return result, err
}

// Rasterizer converts PDF pages to PNG images using poppler's pdftoppm.
type Rasterizer struct {
	runner commandRunner
	dpi    int
	log    zerolog.Logger
}

// NewRasterizer builds a rasterizer rendering at the given DPI.
func NewRasterizer(dpi int) *Rasterizer {
	return &Rasterizer{
		runner: &execRunner{},
		dpi:    dpi,
		log:    logger.WithComponent("rasterizer"),
	}
}

// newRasterizerWithRunner injects a command runner (for tests).
func newRasterizerWithRunner(runner commandRunner, dpi int) *Rasterizer {
	return &Rasterizer{runner: runner, dpi: dpi, log: logger.WithComponent("rasterizer")}
}

// Rasterize renders every page of the PDF into outDir as prefix-N.png files
// and returns the produced pages sorted by page number.
//
// The produced files are enumerated from disk rather than inferred from the
// exit status, so partial output from a crashed pdftoppm is still usable.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath, outDir, prefix string) ([]PageImage, error) {
	outPrefix := filepath.Join(outDir, prefix)

	res, runErr := r.runner.Run(ctx, "pdftoppm",
		"-png",
		"-r", strconv.Itoa(r.dpi),
		pdfPath,
		outPrefix,
	)
	if runErr != nil {
		r.log.Warn().
			Err(runErr).
			Int("exit_code", res.ExitCode).
			Str("stderr", truncate(res.Stderr, 512)).
			Str("pdf", pdfPath).
			Msg("pdftoppm exited with an error; checking for partial output")
	}

	pages, err := r.enumerate(outDir, prefix)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("%w: pdftoppm: %v (stderr: %s)", ErrNoPagesProduced, runErr, truncate(res.Stderr, 256))
		}
		return nil, ErrNoPagesProduced
	}

	r.log.Debug().
		Int("pages", len(pages)).
		Int("dpi", r.dpi).
		Str("pdf", pdfPath).
		Msg("Rasterized PDF pages")
	return pages, nil
}

// enumerate lists prefix-N.png files in outDir and sorts them by page number.
func (r *Rasterizer) enumerate(outDir, prefix string) ([]PageImage, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("enumerate rasterized pages: %w", err)
	}

	var pages []PageImage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		numPart := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ".png")
		// pdftoppm zero-pads page numbers on multi-digit documents.
		pageNum, err := strconv.Atoi(strings.TrimLeft(numPart, "0"))
		if err != nil {
			if numPart == "" || strings.Trim(numPart, "0") != "" {
				continue
			}
			pageNum = 0
		}
		if pageNum < 1 {
			continue
		}
		pages = append(pages, PageImage{
			PageNumber: pageNum,
			Path:       filepath.Join(outDir, name),
		})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
