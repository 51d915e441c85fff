package document

import (
	"fmt"
	"strings"
)

// PageResult is the recognized text of one page. It is both the OCR
// endpoint's response body and the content of a page cache file.
type PageResult struct {
	Text string `json:"text"`
	Page int    `json:"page"`
}

// Upload describes a stored upload session
type Upload struct {
	Success   bool   `json:"success"`
	FilePath  string `json:"filePath"`
	SessionID string `json:"sessionId"`
	PageCount int    `json:"pageCount"`
}

// Validate checks the result is addressable
func (r PageResult) Validate() error {
	if r.Page <= 0 {
		return fmt.Errorf("page must be positive, got %d", r.Page)
	}
	return nil
}

// Contains reports whether the page text contains query, ignoring case
func (r PageResult) Contains(query string) bool {
	return strings.Contains(strings.ToLower(r.Text), strings.ToLower(query))
}

// Merge picks the OCR text when it is non-empty and falls back to the
// locally extracted text otherwise.
func Merge(page int, ocrText, extractedText string) PageResult {
	text := ocrText
	if text == "" {
		text = extractedText
	}
	return PageResult{Text: text, Page: page}
}
