package api

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/controller"
	"github.com/Caia-Tech/caia-ocr/internal/orchestrator"
	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/internal/storage"
	"github.com/Caia-Tech/caia-ocr/internal/telemetry"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/gofiber/fiber/v2"
)

// PageProcessor produces the text of one page
type PageProcessor interface {
	Process(ctx context.Context, sess session.Session, filePath string, page int) (orchestrator.Outcome, error)
}

// PageCounter counts the pages of a stored PDF
type PageCounter interface {
	CountPagesFile(path string) (int, error)
}

// Handlers contains the HTTP handlers for the API
type Handlers struct {
	store     *session.Store
	cache     storage.PageCache
	processor PageProcessor
	counter   PageCounter
	metrics   *telemetry.Metrics
}

// NewHandlers creates a new handlers instance. metrics may be nil.
func NewHandlers(store *session.Store, cache storage.PageCache, processor PageProcessor, counter PageCounter, metrics *telemetry.Metrics) *Handlers {
	return &Handlers{
		store:     store,
		cache:     cache,
		processor: processor,
		counter:   counter,
		metrics:   metrics,
	}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "caia-ocr",
		"version":   "0.1.0",
		"timestamp": time.Now().UTC(),
	})
}

// Upload stores a multipart PDF in a new session and reports its page count
func (h *Handlers) Upload(c *fiber.Ctx) error {
	logger := logging.GetLogger("api")

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}

	src, err := file.Open()
	if err != nil {
		logger.Error().Err(err).Str("file", file.Filename).Msg("Failed to open uploaded file")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process upload",
		})
	}
	defer src.Close()

	sess, filePath, err := h.store.Create(file.Filename, src)
	if err != nil {
		logger.Error().Err(err).Str("file", file.Filename).Msg("Failed to save upload")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process upload",
		})
	}

	pageCount, err := h.counter.CountPagesFile(filePath)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("Could not count pages, reporting 0")
		pageCount = 0
	}

	h.metrics.Upload()
	logger.Info().
		Str("session_id", sess.ID).
		Int("page_count", pageCount).
		Int64("size", file.Size).
		Msg("Upload stored")

	return c.JSON(document.Upload{
		Success:   true,
		FilePath:  filePath,
		SessionID: sess.ID,
		PageCount: pageCount,
	})
}

// OCRRequest asks for the text of one page of an uploaded file
type OCRRequest struct {
	FilePath string `json:"filePath"`
	Page     int    `json:"page"`
}

// OCR returns the text of one page. A cached page is returned byte for byte.
func (h *Handlers) OCR(c *fiber.Ctx) error {
	var req OCRRequest
	if err := c.BodyParser(&req); err != nil || req.FilePath == "" || req.Page <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing required parameters",
		})
	}

	if !h.store.Owns(req.FilePath) {
		return fileNotFound(c)
	}
	if info, err := os.Stat(req.FilePath); err != nil || info.IsDir() {
		return fileNotFound(c)
	}

	logger := logging.GetLogger("api")

	sess, err := h.store.Open(req.FilePath)
	if err != nil {
		return ocrFailed(c, err)
	}

	outcome, err := h.processor.Process(c.UserContext(), sess, req.FilePath, req.Page)
	if err != nil {
		logger.Error().Err(err).
			Str("session_id", sess.ID).
			Int("page", req.Page).
			Msg("OCR processing failed")
		return ocrFailed(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(outcome.Raw)
}

func fileNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "File not found",
	})
}

func ocrFailed(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "Failed to process OCR",
		"details": err.Error(),
	})
}

// SessionResults lists every cached page of a session in page order
func (h *Handlers) SessionResults(c *fiber.Ctx) error {
	sess, results, err := h.loadResults(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"sessionId": sess.ID,
		"results":   results,
	})
}

// SearchMatch is one matching page with a preview
type SearchMatch struct {
	Page    int    `json:"page"`
	Text    string `json:"text"`
	Snippet string `json:"snippet"`
}

// SearchSession searches the cached pages of a session
func (h *Handlers) SearchSession(c *fiber.Ctx) error {
	sess, results, err := h.loadResults(c)
	if err != nil {
		return err
	}

	outcome := controller.Search(results, c.Query("q"))
	matches := make([]SearchMatch, 0, len(outcome.Matches))
	for _, m := range outcome.Matches {
		matches = append(matches, SearchMatch{Page: m.Page, Text: m.Text, Snippet: controller.Snippet(m.Text)})
	}

	return c.JSON(fiber.Map{
		"sessionId":  sess.ID,
		"query":      outcome.Query,
		"activePage": outcome.ActivePage,
		"matches":    matches,
	})
}

func (h *Handlers) loadResults(c *fiber.Ctx) (session.Session, []document.PageResult, error) {
	sess, err := h.store.Get(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return session.Session{}, nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	results, err := h.cache.List(c.UserContext(), sess)
	if err != nil {
		logger := logging.GetLogger("api")
		logger.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to list results")
		return session.Session{}, nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to read results")
	}
	return sess, results, nil
}

// ErrorHandler renders errors as {"error": message}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
