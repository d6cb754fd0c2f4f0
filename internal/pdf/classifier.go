package pdf

import "strings"

// Classification reasons, one per ordered rule.
const (
	ReasonNoText         = "no extractable text"
	ReasonTooFewWords    = "too few total words"
	ReasonLowWordDensity = "low word density"
	ReasonLowCharDensity = "low character density"
	ReasonSufficientText = "sufficient text content"
)

// Thresholds are the classification cut-offs. Zero values fall back to the
// defaults used throughout the corpus of scanned invoices and reports.
type Thresholds struct {
	MinWords        int // below this total the document is scanned
	MinWordsPerPage int // below this average the document is scanned
	MinCharsPerPage int // below this average (text density) the document is scanned
}

// DefaultThresholds returns the standard classification cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{MinWords: 20, MinWordsPerPage: 50, MinCharsPerPage: 200}
}

// Classification is the outcome of the scanned-vs-text heuristic, including
// the metrics that drove the decision for diagnostics.
type Classification struct {
	IsScanned    bool
	Reason       string
	TextLength   int
	WordCount    int
	WordsPerPage float64
	CharsPerPage float64
}

// Classify decides whether a document needs OCR. The rules are ordered and
// the first match wins, so the reason string is deterministic for a given
// input:
//
//  1. no text at all           -> scanned
//  2. too few total words      -> scanned
//  3. low average words/page   -> scanned
//  4. low average chars/page   -> scanned
//  5. otherwise                -> text-based
//
// A zero page count forces both densities to zero, so such documents always
// classify as scanned.
func Classify(text string, pageCount int, t Thresholds) Classification {
	if t.MinWords == 0 && t.MinWordsPerPage == 0 && t.MinCharsPerPage == 0 {
		t = DefaultThresholds()
	}

	trimmed := strings.TrimSpace(text)
	c := Classification{
		TextLength: len(trimmed),
		WordCount:  len(strings.Fields(trimmed)),
	}
	if pageCount > 0 {
		c.WordsPerPage = float64(c.WordCount) / float64(pageCount)
		c.CharsPerPage = float64(c.TextLength) / float64(pageCount)
	}

	switch {
	case c.TextLength == 0:
		c.IsScanned = true
		c.Reason = ReasonNoText
	case c.WordCount < t.MinWords:
		c.IsScanned = true
		c.Reason = ReasonTooFewWords
	case c.WordsPerPage < float64(t.MinWordsPerPage):
		c.IsScanned = true
		c.Reason = ReasonLowWordDensity
	case c.CharsPerPage < float64(t.MinCharsPerPage):
		c.IsScanned = true
		c.Reason = ReasonLowCharDensity
	default:
		c.Reason = ReasonSufficientText
	}
	return c
}
