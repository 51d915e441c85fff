// Package rasterizer drives the poppler command line tools for a single page:
// pdftotext for the embedded text layer and pdftoppm for a PNG render.
package rasterizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Caia-Tech/caia-ocr/pkg/logging"
)

const (
	DefaultDPI   = 300
	outputPrefix = "page"
)

// Rasterizer invokes the text extraction and page-to-image tools
type Rasterizer struct {
	PdfToText string
	PdfToPPM  string
	DPI       int
	// Timeout bounds each tool invocation; zero means no limit.
	Timeout  time.Duration
	Runner   Runner
	Resolver *Resolver
}

// New creates a Rasterizer using the binaries found on PATH
func New() *Rasterizer {
	return &Rasterizer{
		PdfToText: "pdftotext",
		PdfToPPM:  "pdftoppm",
		DPI:       DefaultDPI,
		Runner:    ExecRunner{},
		Resolver:  NewResolver(nil),
	}
}

// ExtractText writes the text layer of page to outPath and returns it. A
// missing output file after a successful run yields empty text.
func (r *Rasterizer) ExtractText(ctx context.Context, filePath string, page int, outPath string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	p := strconv.Itoa(page)
	if err := r.Runner.Run(ctx, r.PdfToText, "-f", p, "-l", p, filePath, outPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(outPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading extracted text: %w", err)
	}
	return string(data), nil
}

// Rasterize renders page as a PNG into imagesDir and returns the path of the
// generated image.
func (r *Rasterizer) Rasterize(ctx context.Context, filePath string, page int, imagesDir string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	dpi := r.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	p := strconv.Itoa(page)
	prefix := filepath.Join(imagesDir, outputPrefix)
	if err := r.Runner.Run(ctx, r.PdfToPPM, "-png", "-f", p, "-l", p, "-r", strconv.Itoa(dpi), filePath, prefix); err != nil {
		return "", err
	}

	path, err := r.resolver().Resolve(imagesDir, page)
	if err != nil {
		logger := logging.GetLogger("rasterizer")
		logger.Warn().
			Int("page", page).
			Str("dir", imagesDir).
			Strs("candidates", r.resolver().Candidates(imagesDir, page)).
			Strs("listing", ListDir(imagesDir)).
			Msg("Rendered image not found under any known name")
		return "", err
	}
	return path, nil
}

func (r *Rasterizer) resolver() *Resolver {
	if r.Resolver == nil {
		r.Resolver = NewResolver(nil)
	}
	return r.Resolver
}

func (r *Rasterizer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(ctx, r.Timeout)
	}
	return context.WithCancel(ctx)
}
