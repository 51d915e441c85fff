package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFProcessingError represents a non-retryable PDF processing error
type PDFProcessingError struct {
	Message string
}

func (e *PDFProcessingError) Error() string {
	return e.Message
}

// PDFExtractor reads PDFs with a pure-Go parser. It is used to count pages at
// upload time and as a text source when the poppler tools are missing.
type PDFExtractor struct{}

// NewPDFExtractor creates an extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// CountPagesFile returns the number of pages in the PDF at path
func (p *PDFExtractor) CountPagesFile(path string) (int, error) {
	f, doc, err := pdf.Open(path)
	if err != nil {
		return 0, &PDFProcessingError{Message: fmt.Sprintf("failed to parse PDF %s: %v", path, err)}
	}
	defer f.Close()

	return doc.NumPage(), nil
}

// PageText extracts the plain text of a single 1-based page of the PDF at path
func (p *PDFExtractor) PageText(ctx context.Context, path string, page int) (string, error) {
	f, doc, err := pdf.Open(path)
	if err != nil {
		return "", &PDFProcessingError{Message: fmt.Sprintf("failed to parse PDF %s: %v", path, err)}
	}
	defer f.Close()

	if page < 1 || page > doc.NumPage() {
		return "", &PDFProcessingError{
			Message: fmt.Sprintf("page %d out of range (document has %d pages)", page, doc.NumPage()),
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	pdfPage := doc.Page(page)
	if pdfPage.V.IsNull() {
		return "", nil
	}

	text, err := pdfPage.GetPlainText(nil)
	if err != nil {
		return "", &PDFProcessingError{Message: fmt.Sprintf("failed to read text of page %d: %v", page, err)}
	}
	return strings.TrimSpace(text), nil
}
