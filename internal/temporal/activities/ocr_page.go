package activities

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Caia-Tech/caia-ocr/internal/orchestrator"
	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// PageProcessor produces the text of one page
type PageProcessor interface {
	Process(ctx context.Context, sess session.Session, filePath string, page int) (orchestrator.Outcome, error)
}

// OCRActivities runs the page pipeline inside a worker
type OCRActivities struct {
	store     *session.Store
	processor PageProcessor
}

// NewOCRActivities creates the OCR activities
func NewOCRActivities(store *session.Store, processor PageProcessor) *OCRActivities {
	return &OCRActivities{store: store, processor: processor}
}

// OCRPageActivity processes one page of an uploaded file
func (a *OCRActivities) OCRPageActivity(ctx context.Context, input workflows.PageInput) (document.PageResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Processing page", "session", input.SessionID, "page", input.Page)

	if input.FilePath == "" || input.Page <= 0 {
		return document.PageResult{}, temporal.NewNonRetryableApplicationError(
			"missing required parameters", "InvalidInputError", nil)
	}
	if _, err := os.Stat(input.FilePath); errors.Is(err, fs.ErrNotExist) {
		return document.PageResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("file not found: %s", input.FilePath), "FileNotFoundError", err)
	}

	sess, err := a.store.Open(input.FilePath)
	if err != nil {
		return document.PageResult{}, err
	}

	outcome, err := a.processor.Process(ctx, sess, input.FilePath, input.Page)
	if err != nil {
		return document.PageResult{}, err
	}

	logger.Info("Page processed", "page", input.Page, "cached", outcome.Cached, "outcome", outcome.Kind)
	return outcome.Result, nil
}
