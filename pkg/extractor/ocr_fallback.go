//go:build !ocr

package extractor

import (
	"context"
	"fmt"
)

// TesseractAvailable reports whether this binary was built with Tesseract support
const TesseractAvailable = false

// OCRExtractor is the stand-in used when the binary is built without the ocr tag
type OCRExtractor struct {
	Language string
}

// NewOCRExtractor creates a new OCR extractor (fallback version)
func NewOCRExtractor(language string) *OCRExtractor {
	if language == "" {
		language = "eng"
	}
	return &OCRExtractor{Language: language}
}

// Extract returns an error indicating OCR is not available
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":     "ocr",
		"size":     fmt.Sprintf("%d", len(content)),
		"language": o.Language,
		"engine":   "tesseract_not_available",
		"status":   "error",
	}

	return "", metadata, &PDFProcessingError{
		Message: "OCR functionality requires Tesseract; rebuild with -tags ocr after installing tesseract-ocr",
	}
}
