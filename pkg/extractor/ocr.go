//go:build ocr

package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractAvailable reports whether this binary was built with Tesseract support
const TesseractAvailable = true

// OCRExtractor recognizes text in page images with a local Tesseract engine
type OCRExtractor struct {
	Language             string // Tesseract language code (e.g., "eng", "eng+fra")
	PageSegmentationMode gosseract.PageSegMode
}

// NewOCRExtractor creates a new OCR extractor for language ("eng" when empty)
func NewOCRExtractor(language string) *OCRExtractor {
	if language == "" {
		language = "eng"
	}
	return &OCRExtractor{
		Language:             language,
		PageSegmentationMode: gosseract.PSM_AUTO,
	}
}

// Extract extracts text from image content using OCR
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":     "ocr",
		"size":     fmt.Sprintf("%d", len(content)),
		"language": o.Language,
		"engine":   "tesseract",
	}

	if len(content) == 0 {
		return "", metadata, &PDFProcessingError{
			Message: "no image content provided for OCR",
		}
	}
	if err := ctx.Err(); err != nil {
		return "", metadata, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(o.Language); err != nil {
		return "", metadata, &PDFProcessingError{
			Message: fmt.Sprintf("failed to set OCR language '%s': %v", o.Language, err),
		}
	}

	if err := client.SetPageSegMode(o.PageSegmentationMode); err != nil {
		return "", metadata, &PDFProcessingError{
			Message: fmt.Sprintf("failed to set page segmentation mode: %v", err),
		}
	}

	if err := client.SetImageFromBytes(content); err != nil {
		return "", metadata, &PDFProcessingError{
			Message: fmt.Sprintf("failed to set OCR image data: %v", err),
		}
	}

	text, err := client.Text()
	if err != nil {
		return "", metadata, &PDFProcessingError{
			Message: fmt.Sprintf("OCR text extraction failed: %v", err),
		}
	}

	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	metadata["text_length"] = fmt.Sprintf("%d", len(text))
	metadata["word_count"] = fmt.Sprintf("%d", len(strings.Fields(text)))
	metadata["status"] = "success"

	// A blank page is a valid result; the caller decides what empty means.
	return text, metadata, nil
}
