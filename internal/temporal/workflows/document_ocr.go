package workflows

import (
	"fmt"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/controller"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DocumentOCRInput identifies an uploaded document
type DocumentOCRInput struct {
	SessionID string `json:"sessionId"`
	FilePath  string `json:"filePath"`
	PageCount int    `json:"pageCount"`
}

// PageInput is the input of one page activity
type PageInput struct {
	SessionID string `json:"sessionId"`
	FilePath  string `json:"filePath"`
	Page      int    `json:"page"`
}

// DocumentOCRResult holds every page in order
type DocumentOCRResult struct {
	SessionID string                `json:"sessionId"`
	Results   []document.PageResult `json:"results"`
}

// Progress is returned by the progress query
type Progress struct {
	CurrentPage int `json:"currentPage"`
	Completed   int `json:"completed"`
	Total       int `json:"total"`
	Percent     int `json:"percent"`
}

const (
	ProgressQueryName   = "progress"
	OCRPageActivityName = "OCRPageActivity"
)

// DocumentOCRWorkflow processes pages 1..PageCount one at a time. The first
// failing page fails the workflow and no partial result is returned.
func DocumentOCRWorkflow(ctx workflow.Context, input DocumentOCRInput) (DocumentOCRResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting document OCR", "session", input.SessionID, "pages", input.PageCount)

	progress := Progress{Total: input.PageCount}
	if err := workflow.SetQueryHandler(ctx, ProgressQueryName, func() (Progress, error) {
		return progress, nil
	}); err != nil {
		return DocumentOCRResult{}, err
	}

	// A page is not retried here; the page cache makes a new run cheap.
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	results := make([]document.PageResult, 0, input.PageCount)
	for page := 1; page <= input.PageCount; page++ {
		progress.CurrentPage = page
		progress.Percent = controller.Progress(page, input.PageCount)

		var result document.PageResult
		err := workflow.ExecuteActivity(ctx, OCRPageActivityName, PageInput{
			SessionID: input.SessionID,
			FilePath:  input.FilePath,
			Page:      page,
		}).Get(ctx, &result)
		if err != nil {
			logger.Error("Page failed", "page", page, "error", err)
			return DocumentOCRResult{}, fmt.Errorf("OCR processing failed for page %d: %w", page, err)
		}

		results = append(results, result)
		progress.Completed = page
	}

	progress.CurrentPage = 0
	progress.Percent = 100
	logger.Info("Document OCR completed", "session", input.SessionID, "pages", len(results))

	return DocumentOCRResult{SessionID: input.SessionID, Results: results}, nil
}
