// Package pdf reads the embedded text layer of PDF documents and classifies
// them as text-based or scanned.
package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ErrUnreadable is returned when the input file is missing, inaccessible, or
// not a parseable PDF. This is terminal for the pipeline.
var ErrUnreadable = errors.New("PDF is missing or unreadable")

// PageText is the embedded text of one page.
type PageText struct {
	PageNumber int
	Text       string
}

// Document is the parsed view of a PDF: page count and whatever text the
// format exposes directly, without OCR.
type Document struct {
	Path      string
	PageCount int
	Pages     []PageText
	Text      string
}

// Reader parses PDFs. Injected into the pipeline so tests can substitute a
// canned document.
type Reader interface {
	Read(path string) (*Document, error)
}

// FitzReader implements Reader using MuPDF via go-fitz.
type FitzReader struct{}

// NewReader returns the default go-fitz backed reader.
func NewReader() *FitzReader { return &FitzReader{} }

// Read opens the PDF and extracts per-page embedded text. Pages whose text
// extraction fails individually are recorded as empty rather than failing the
// document.
func (r *FitzReader) Read(path string) (*Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	d := &Document{
		Path:      path,
		PageCount: pageCount,
		Pages:     make([]PageText, 0, pageCount),
	}

	var sb strings.Builder
	for i := 0; i < pageCount; i++ {
		text, err := doc.Text(i)
		if err != nil {
			text = ""
		}
		text = strings.TrimSpace(text)
		d.Pages = append(d.Pages, PageText{PageNumber: i + 1, Text: text})
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(text)
		}
	}
	d.Text = sb.String()

	return d, nil
}
