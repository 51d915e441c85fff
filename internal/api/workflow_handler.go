package api

import (
	"context"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/gofiber/fiber/v2"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

// WorkflowClient is the subset of the Temporal client used by the API
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// WorkflowHandler starts and inspects document OCR workflows
type WorkflowHandler struct {
	temporal  WorkflowClient
	store     *session.Store
	counter   PageCounter
	taskQueue string
}

// NewWorkflowHandler creates a workflow handler
func NewWorkflowHandler(temporal WorkflowClient, store *session.Store, counter PageCounter, taskQueue string) *WorkflowHandler {
	return &WorkflowHandler{
		temporal:  temporal,
		store:     store,
		counter:   counter,
		taskQueue: taskQueue,
	}
}

// ProcessResponse identifies a started workflow
type ProcessResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	PageCount  int    `json:"page_count"`
}

// WorkflowStatusResponse represents workflow status
type WorkflowStatusResponse struct {
	WorkflowID string              `json:"workflow_id"`
	Status     string              `json:"status"`
	StartTime  time.Time           `json:"start_time"`
	CloseTime  *time.Time          `json:"close_time,omitempty"`
	Error      string              `json:"error,omitempty"`
	Progress   *workflows.Progress `json:"progress,omitempty"`
}

// WorkflowID names the OCR workflow of a session. Starting a session twice
// while it runs attaches to the running workflow.
func WorkflowID(sessionID string) string {
	return "ocr-" + sessionID
}

// ProcessSession starts the document OCR workflow for a session
func (h *WorkflowHandler) ProcessSession(c *fiber.Ctx) error {
	logger := logging.GetLogger("api")

	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	filePath, err := h.store.SourceFile(sess)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "File not found",
		})
	}

	pageCount, err := h.counter.CountPagesFile(filePath)
	if err != nil || pageCount == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Could not determine page count",
		})
	}

	run, err := h.temporal.ExecuteWorkflow(c.UserContext(), client.StartWorkflowOptions{
		ID:        WorkflowID(sess.ID),
		TaskQueue: h.taskQueue,
	}, workflows.DocumentOCRWorkflow, workflows.DocumentOCRInput{
		SessionID: sess.ID,
		FilePath:  filePath,
		PageCount: pageCount,
	})
	if err != nil {
		logger.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to start workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start document OCR",
			"details": err.Error(),
		})
	}

	logger.Info().
		Str("session_id", sess.ID).
		Str("workflow_id", run.GetID()).
		Int("page_count", pageCount).
		Msg("Started document OCR workflow")

	return c.Status(fiber.StatusAccepted).JSON(ProcessResponse{
		WorkflowID: run.GetID(),
		RunID:      run.GetRunID(),
		PageCount:  pageCount,
	})
}

// GetWorkflow returns the status of a workflow
func (h *WorkflowHandler) GetWorkflow(c *fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Workflow ID is required",
		})
	}

	resp, err := h.temporal.DescribeWorkflowExecution(c.UserContext(), workflowID, "")
	if err != nil || resp.GetWorkflowExecutionInfo() == nil {
		logger := logging.GetLogger("api")
		logger.Warn().Err(err).Str("workflow_id", workflowID).Msg("Failed to describe workflow")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":       "Workflow not found",
			"workflow_id": workflowID,
		})
	}

	info := resp.GetWorkflowExecutionInfo()
	response := WorkflowStatusResponse{
		WorkflowID: workflowID,
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}

	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		response.CloseTime = &closeTime
	}

	if info.GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_FAILED {
		response.Error = "Workflow failed - check Temporal UI for details"
	}

	value, err := h.temporal.QueryWorkflow(c.UserContext(), workflowID, "", workflows.ProgressQueryName)
	if err == nil && value.HasValue() {
		var progress workflows.Progress
		if value.Get(&progress) == nil {
			response.Progress = &progress
		}
	}

	return c.JSON(response)
}
