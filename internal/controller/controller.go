// Package controller drives OCR over every page of an uploaded document and
// searches the aggregated results.
package controller

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Caia-Tech/caia-ocr/pkg/document"
	"github.com/Caia-Tech/caia-ocr/pkg/logging"
)

// SnippetLength is the number of characters shown for a matching page
const SnippetLength = 150

// PageSource returns the OCR result of one page
type PageSource interface {
	OCRPage(ctx context.Context, page int) (document.PageResult, error)
}

// PageSourceFunc adapts a function to PageSource
type PageSourceFunc func(ctx context.Context, page int) (document.PageResult, error)

// OCRPage calls f
func (f PageSourceFunc) OCRPage(ctx context.Context, page int) (document.PageResult, error) {
	return f(ctx, page)
}

// ProgressFunc receives a percentage in [0, 100]
type ProgressFunc func(percent int)

// PageError reports the page that stopped a run
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("OCR processing failed for page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Progress returns floor(done/total*100)
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(done) / float64(total) * 100))
}

// Run requests pages 1..pageCount one at a time, in order. The next request
// is only issued after the previous one completes. Any failure aborts the run
// and the pages completed so far are discarded.
func Run(ctx context.Context, pageCount int, source PageSource, progress ProgressFunc) ([]document.PageResult, error) {
	logger := logging.GetLogger("controller")

	results := make([]document.PageResult, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		if progress != nil {
			progress(Progress(i, pageCount))
		}
		if err := ctx.Err(); err != nil {
			return nil, &PageError{Page: i, Err: err}
		}

		result, err := source.OCRPage(ctx, i)
		if err != nil {
			logger.Error().Err(err).Int("page", i).Msg("Page failed, aborting run")
			return nil, &PageError{Page: i, Err: err}
		}
		results = append(results, result)
	}

	if progress != nil {
		progress(100)
	}
	logger.Info().Int("pages", pageCount).Msg("All pages processed")
	return results, nil
}

// SearchOutcome is the matching subset of a result set
type SearchOutcome struct {
	Query   string                `json:"query"`
	Matches []document.PageResult `json:"matches"`
	// ActivePage is the lowest matching page, 0 when nothing matched
	ActivePage int `json:"activePage"`
}

// Search filters results to pages containing query, ignoring case. Order
// and page numbers are preserved. A blank query matches nothing.
func Search(results []document.PageResult, query string) SearchOutcome {
	outcome := SearchOutcome{Query: query, Matches: []document.PageResult{}}
	if strings.TrimSpace(query) == "" {
		return outcome
	}

	for _, r := range results {
		if !r.Contains(query) {
			continue
		}
		outcome.Matches = append(outcome.Matches, r)
		if outcome.ActivePage == 0 || r.Page < outcome.ActivePage {
			outcome.ActivePage = r.Page
		}
	}
	return outcome
}

// Snippet returns the first SnippetLength characters of text
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= SnippetLength {
		return text
	}
	return string([]rune(text)[:SnippetLength])
}
