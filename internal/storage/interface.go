package storage

import (
	"context"

	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
)

// PageCache persists per-page OCR results. Presence of an entry is the only
// cache-hit signal; entries are never expired.
type PageCache interface {
	// Get returns the raw stored bytes and the decoded result. ok is false on a miss.
	Get(ctx context.Context, sess session.Session, page int) (raw []byte, result document.PageResult, ok bool, err error)
	Put(ctx context.Context, sess session.Session, result document.PageResult) ([]byte, error)
	// List returns every cached page of a session in page order
	List(ctx context.Context, sess session.Session) ([]document.PageResult, error)
}

// StorageMetrics provides telemetry for cache operations
type StorageMetrics struct {
	OperationType string
	Duration      int64 // nanoseconds
	Success       bool
	Backend       string
	Error         error
}

// MetricsCollector receives cache operation metrics
type MetricsCollector interface {
	RecordMetric(metric StorageMetrics)
}
