package api

import (
	"github.com/Caia-Tech/caia-ocr/internal/storage"
	"github.com/Caia-Tech/caia-ocr/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
)

// LimiterStats reports the state of the model rate limiter
type LimiterStats interface {
	Stats() ratelimit.Stats
}

// StorageHandler exposes page cache operation metrics
type StorageHandler struct {
	metrics *storage.SimpleMetricsCollector
	limiter LimiterStats
}

// NewStorageHandler creates a new storage handler. limiter may be nil.
func NewStorageHandler(metrics *storage.SimpleMetricsCollector, limiter LimiterStats) *StorageHandler {
	return &StorageHandler{metrics: metrics, limiter: limiter}
}

// GetStats returns the cache operation summary and model limiter state
func (h *StorageHandler) GetStats(c *fiber.Ctx) error {
	resp := fiber.Map{
		"metrics_summary":  h.metrics.GetMetricsSummary(),
		"total_operations": len(h.metrics.GetMetrics()),
	}
	if h.limiter != nil {
		resp["model_limiter"] = h.limiter.Stats()
	}
	return c.JSON(resp)
}

// ClearStats clears all collected metrics
func (h *StorageHandler) ClearStats(c *fiber.Ctx) error {
	h.metrics.ClearMetrics()
	return c.JSON(fiber.Map{
		"message": "Metrics cleared successfully",
	})
}
