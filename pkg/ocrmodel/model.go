// Package ocrmodel turns a rendered page image into text.
package ocrmodel

import (
	"context"
	"fmt"

	"github.com/Caia-Tech/caia-ocr/pkg/extractor"
)

// Prompt is the fixed instruction sent with every page image
const Prompt = "Extract all text from this image of a PDF page. Include all visible text, including text in images, charts, and handwritten content if present. Return only the extracted text without any additional explanation."

// Model recognizes the text in an image
type Model interface {
	Recognize(ctx context.Context, prompt string, image []byte) (string, error)
}

// Func adapts a function to Model
type Func func(ctx context.Context, prompt string, image []byte) (string, error)

// Recognize calls f
func (f Func) Recognize(ctx context.Context, prompt string, image []byte) (string, error) {
	return f(ctx, prompt, image)
}

// Tesseract runs the local Tesseract engine. The prompt is ignored.
type Tesseract struct {
	ocr *extractor.OCRExtractor
}

// NewTesseract creates a Tesseract-backed model for language
func NewTesseract(language string) *Tesseract {
	return &Tesseract{ocr: extractor.NewOCRExtractor(language)}
}

// Recognize extracts text from image
func (t *Tesseract) Recognize(ctx context.Context, _ string, image []byte) (string, error) {
	text, _, err := t.ocr.Extract(ctx, image)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}
