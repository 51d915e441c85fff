// Package orchestrator produces the text of one PDF page, combining the
// embedded text layer with an OCR pass over a rendered image, and caches the
// result per session and page.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/internal/storage"
	"github.com/Caia-Tech/caia-ocr/internal/telemetry"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/Caia-Tech/caia-ocr/pkg/ocrmodel"
	"github.com/rs/zerolog"
)

// ErrNoText is returned when the page could neither be rendered nor yielded
// any extracted text.
var ErrNoText = errors.New("failed to extract text and convert image")

// Tools are the per-page external tool invocations
type Tools interface {
	ExtractText(ctx context.Context, filePath string, page int, outPath string) (string, error)
	Rasterize(ctx context.Context, filePath string, page int, imagesDir string) (string, error)
}

// PageTextSource reads a page's text without external tools
type PageTextSource interface {
	PageText(ctx context.Context, path string, page int) (string, error)
}

// Options tune the orchestrator
type Options struct {
	// ModelTimeout bounds the OCR model call; zero means no limit.
	ModelTimeout time.Duration
	// PageLocks serializes concurrent requests for the same session and page
	// inside this process. Off by default: duplicate requests may both run OCR.
	PageLocks bool
	// TextFallback is consulted when pdftotext is not installed.
	TextFallback PageTextSource
	Metrics      *telemetry.Metrics
}

// Outcome is the result of processing one page
type Outcome struct {
	Result document.PageResult
	// Raw is the cached JSON encoding of Result
	Raw    []byte
	Cached bool
	Kind   string
}

// Orchestrator runs the per-page pipeline
type Orchestrator struct {
	cache storage.PageCache
	tools Tools
	model ocrmodel.Model
	opts  Options
	locks *pageLocks
}

// New creates an orchestrator
func New(cache storage.PageCache, tools Tools, model ocrmodel.Model, opts Options) *Orchestrator {
	return &Orchestrator{
		cache: cache,
		tools: tools,
		model: model,
		opts:  opts,
		locks: newPageLocks(),
	}
}

// Process returns the text of page. A cached result is returned unchanged
// without touching the tools or the model.
func (o *Orchestrator) Process(ctx context.Context, sess session.Session, filePath string, page int) (Outcome, error) {
	logger := logging.GetPageLogger("orchestrator", sess.ID, page)

	if o.opts.PageLocks {
		unlock := o.locks.acquire(fmt.Sprintf("%s/%d", sess.ID, page))
		defer unlock()
	}

	raw, cached, ok, err := o.cache.Get(ctx, sess, page)
	if err != nil {
		o.opts.Metrics.Page(telemetry.OutcomeFailed)
		return Outcome{}, err
	}
	if ok {
		logger.Debug().Msg("Using cached OCR result")
		o.opts.Metrics.Page(telemetry.OutcomeCacheHit)
		return Outcome{Result: cached, Raw: raw, Cached: true, Kind: telemetry.OutcomeCacheHit}, nil
	}

	extracted := o.extractText(ctx, logger, sess, filePath, page)

	image, err := o.renderPage(ctx, sess, filePath, page)
	if err != nil {
		logger.Error().Err(err).Msg("Error converting PDF page to image")
		return o.fallback(ctx, logger, sess, page, extracted, telemetry.OutcomeTextOnly, err)
	}

	ocrText, err := o.recognize(ctx, image)
	if err != nil {
		logger.Error().Err(err).Msg("OCR model call failed")
		if extracted == "" {
			o.opts.Metrics.Page(telemetry.OutcomeFailed)
			return Outcome{}, fmt.Errorf("recognizing page %d: %w", page, err)
		}
		return o.fallback(ctx, logger, sess, page, extracted, telemetry.OutcomeTextFallback, err)
	}

	result := document.Merge(page, ocrText, extracted)
	logger.Info().
		Int("ocr_chars", len(ocrText)).
		Int("extracted_chars", len(extracted)).
		Msg("OCR result received")
	return o.store(ctx, sess, result, telemetry.OutcomeOCR)
}

// extractText runs the local text extraction. Failures are logged and yield "".
func (o *Orchestrator) extractText(ctx context.Context, logger zerolog.Logger, sess session.Session, filePath string, page int) string {
	start := time.Now()
	text, err := o.tools.ExtractText(ctx, filePath, page, sess.TextPath(page))
	o.opts.Metrics.Tool("pdftotext", start, err)
	if err == nil {
		return text
	}

	logger.Error().Err(err).Msg("Error extracting text with pdftotext")
	if o.opts.TextFallback == nil || !errors.Is(err, exec.ErrNotFound) {
		return ""
	}

	text, err = o.opts.TextFallback.PageText(ctx, filePath, page)
	if err != nil {
		logger.Warn().Err(err).Msg("Pure-Go text extraction failed")
		return ""
	}
	logger.Debug().Msg("Extracted text with pure-Go parser")
	return text
}

// renderPage rasterizes the page and reads the resulting image
func (o *Orchestrator) renderPage(ctx context.Context, sess session.Session, filePath string, page int) ([]byte, error) {
	start := time.Now()
	path, err := o.tools.Rasterize(ctx, filePath, page, sess.ImagesDir())
	o.opts.Metrics.Tool("pdftoppm", start, err)
	if err != nil {
		return nil, err
	}

	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rendered image: %w", err)
	}
	return image, nil
}

func (o *Orchestrator) recognize(ctx context.Context, image []byte) (string, error) {
	if o.opts.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	defer o.opts.Metrics.Model(start)
	return o.model.Recognize(ctx, ocrmodel.Prompt, image)
}

// fallback caches the extracted text alone, or fails when there is none
func (o *Orchestrator) fallback(ctx context.Context, logger zerolog.Logger, sess session.Session, page int, extracted, kind string, cause error) (Outcome, error) {
	if extracted == "" {
		o.opts.Metrics.Page(telemetry.OutcomeFailed)
		return Outcome{}, fmt.Errorf("%w: %v", ErrNoText, cause)
	}

	logger.Info().Msg("Falling back to text-only extraction")
	return o.store(ctx, sess, document.PageResult{Text: extracted, Page: page}, kind)
}

func (o *Orchestrator) store(ctx context.Context, sess session.Session, result document.PageResult, kind string) (Outcome, error) {
	raw, err := o.cache.Put(ctx, sess, result)
	if err != nil {
		o.opts.Metrics.Page(telemetry.OutcomeFailed)
		return Outcome{}, fmt.Errorf("caching page %d: %w", result.Page, err)
	}
	o.opts.Metrics.Page(kind)
	return Outcome{Result: result, Raw: raw, Kind: kind}, nil
}
