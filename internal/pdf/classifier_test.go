package pdf

import (
	"strings"
	"testing"
)

// TestClassifyOrderedRules exercises each classification rule in order.
func TestClassifyOrderedRules(t *testing.T) {
	// ~120 distinct words, well over 200 characters, on one page.
	dense := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit sed do ", 12)

	tests := []struct {
		name      string
		text      string
		pageCount int
		isScanned bool
		reason    string
	}{
		{
			name:      "empty text",
			text:      "",
			pageCount: 1,
			isScanned: true,
			reason:    ReasonNoText,
		},
		{
			name:      "whitespace only counts as no text",
			text:      "   \n\t  ",
			pageCount: 1,
			isScanned: true,
			reason:    ReasonNoText,
		},
		{
			name:      "three words",
			text:      "Page 1 only",
			pageCount: 1,
			isScanned: true,
			reason:    ReasonTooFewWords,
		},
		{
			name: "enough words but thin per page",
			// 25 short words spread over 2 pages: 12.5 words/page.
			text:      strings.Repeat("ab ", 25),
			pageCount: 2,
			isScanned: true,
			reason:    ReasonLowWordDensity,
		},
		{
			name: "dense words but short characters",
			// 60 single-letter words on one page: 60 words/page but 119 chars.
			text:      strings.Repeat("a ", 60),
			pageCount: 1,
			isScanned: true,
			reason:    ReasonLowCharDensity,
		},
		{
			name:      "dense single page passage",
			text:      dense,
			pageCount: 1,
			isScanned: false,
			reason:    ReasonSufficientText,
		},
		{
			name:      "zero pages always scanned",
			text:      dense,
			pageCount: 0,
			isScanned: true,
			reason:    ReasonLowWordDensity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.text, tt.pageCount, DefaultThresholds())
			if c.IsScanned != tt.isScanned {
				t.Fatalf("IsScanned = %v, want %v", c.IsScanned, tt.isScanned)
			}
			if c.Reason != tt.reason {
				t.Fatalf("Reason = %q, want %q", c.Reason, tt.reason)
			}
		})
	}
}

// TestClassifyIsDeterministic verifies repeated classification of the same
// input yields identical results.
func TestClassifyIsDeterministic(t *testing.T) {
	first := Classify("Page 1 only", 1, DefaultThresholds())
	for i := 0; i < 10; i++ {
		if got := Classify("Page 1 only", 1, DefaultThresholds()); got != first {
			t.Fatalf("classification varied: %+v vs %+v", got, first)
		}
	}
}

// TestClassifyDensityMetrics verifies the reported metrics.
func TestClassifyDensityMetrics(t *testing.T) {
	c := Classify(strings.Repeat("word ", 100), 4, DefaultThresholds())
	if c.WordCount != 100 {
		t.Fatalf("WordCount = %d, want 100", c.WordCount)
	}
	if c.WordsPerPage != 25 {
		t.Fatalf("WordsPerPage = %v, want 25", c.WordsPerPage)
	}
	if c.CharsPerPage == 0 {
		t.Fatal("CharsPerPage should be non-zero")
	}
}
