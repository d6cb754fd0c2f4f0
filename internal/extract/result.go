package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"docextract/internal/pdf"
	"docextract/pkg/models"
)

// pageMarker matches the explicit page separators used in merged OCR text.
var pageMarker = regexp.MustCompile(`(?m)^--- Page (\d+) ---$`)

// MergePages joins per-page text in page-number order with explicit
// separators so downstream consumers (and SplitPages) can recover page
// boundaries.
func MergePages(pages []models.PageSummary) string {
	var sb strings.Builder
	for i, page := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n", page.PageNumber)
		sb.WriteString(page.Text)
	}
	return sb.String()
}

// SplitPages is the inverse of MergePages: it splits merged text back into
// ordered page summaries. Text without any page marker comes back as a single
// page 1.
func SplitPages(text string) []models.PageSummary {
	matches := pageMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []models.PageSummary{{
			PageNumber: 1,
			Text:       trimmed,
			WordCount:  len(strings.Fields(trimmed)),
		}}
	}

	pages := make([]models.PageSummary, 0, len(matches))
	for i, m := range matches {
		pageNum, _ := strconv.Atoi(text[m[2]:m[3]])
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[start:end])
		pages = append(pages, models.PageSummary{
			PageNumber: pageNum,
			Text:       body,
			WordCount:  len(strings.Fields(body)),
		})
	}
	return pages
}

// splitWords tokenizes on whitespace, matching the classifier's word count.
func splitWords(text string) []string {
	return strings.Fields(text)
}

// sortSummaries orders the parallel summary/confidence slices by page number.
func sortSummaries(summaries []models.PageSummary, confidences []float64) {
	sort.Sort(&byPage{summaries, confidences})
}

type byPage struct {
	summaries   []models.PageSummary
	confidences []float64
}

func (b *byPage) Len() int { return len(b.summaries) }
func (b *byPage) Less(i, j int) bool {
	return b.summaries[i].PageNumber < b.summaries[j].PageNumber
}
func (b *byPage) Swap(i, j int) {
	b.summaries[i], b.summaries[j] = b.summaries[j], b.summaries[i]
	b.confidences[i], b.confidences[j] = b.confidences[j], b.confidences[i]
}

// pageSummariesFromDirect builds per-page summaries for the direct path:
// per-page text when the reader exposed it, otherwise the whole document as a
// single page.
func pageSummariesFromDirect(pages []pdf.PageText, fullText string) []models.PageSummary {
	var out []models.PageSummary
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		out = append(out, models.PageSummary{
			PageNumber: p.PageNumber,
			Text:       p.Text,
			WordCount:  len(strings.Fields(p.Text)),
		})
	}
	if len(out) == 0 && strings.TrimSpace(fullText) != "" {
		out = []models.PageSummary{{
			PageNumber: 1,
			Text:       fullText,
			WordCount:  len(strings.Fields(fullText)),
		}}
	}
	return out
}
