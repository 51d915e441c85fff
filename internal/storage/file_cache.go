package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
	"github.com/rs/zerolog/log"
)

const fileBackend = "file"

var cacheFilePattern = regexp.MustCompile(`^ocr-page-(\d+)\.json$`)

// FileCache stores each page result as JSON next to the session's other files
type FileCache struct {
	metrics MetricsCollector
}

// NewFileCache creates a file-backed page cache. metrics may be nil.
func NewFileCache(metrics MetricsCollector) *FileCache {
	return &FileCache{metrics: metrics}
}

// Get reads the cache file for page. A missing file is a miss, not an error.
func (c *FileCache) Get(ctx context.Context, sess session.Session, page int) ([]byte, document.PageResult, bool, error) {
	start := time.Now()
	path := sess.CachePath(page)

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.record("get_miss", start, nil)
		return nil, document.PageResult{}, false, nil
	}
	if err != nil {
		c.record("get", start, err)
		return nil, document.PageResult{}, false, fmt.Errorf("reading cache %s: %w", path, err)
	}

	var result document.PageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.record("get", start, err)
		return nil, document.PageResult{}, false, fmt.Errorf("decoding cache %s: %w", path, err)
	}

	c.record("get_hit", start, nil)
	return raw, result, true, nil
}

// Put serializes result and writes it to the page's cache file, returning the
// bytes written. An existing entry is overwritten.
func (c *FileCache) Put(ctx context.Context, sess session.Session, result document.PageResult) ([]byte, error) {
	start := time.Now()
	if err := result.Validate(); err != nil {
		c.record("put", start, err)
		return nil, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		c.record("put", start, err)
		return nil, fmt.Errorf("encoding cache entry: %w", err)
	}

	path := sess.CachePath(result.Page)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		c.record("put", start, err)
		return nil, fmt.Errorf("writing cache %s: %w", path, err)
	}

	c.record("put", start, nil)
	return raw, nil
}

// List scans the session directory for cache files
func (c *FileCache) List(ctx context.Context, sess session.Session) ([]document.PageResult, error) {
	start := time.Now()
	entries, err := os.ReadDir(sess.Dir)
	if err != nil {
		c.record("list", start, err)
		return nil, fmt.Errorf("listing session %s: %w", sess.ID, err)
	}

	var pages []int
	for _, entry := range entries {
		m := cacheFilePattern.FindStringSubmatch(entry.Name())
		if m == nil || entry.IsDir() {
			continue
		}
		page, err := strconv.Atoi(m[1])
		if err != nil || page <= 0 {
			continue
		}
		pages = append(pages, page)
	}
	sort.Ints(pages)

	results := make([]document.PageResult, 0, len(pages))
	for _, page := range pages {
		_, result, ok, err := c.Get(ctx, sess, page)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Int("page", page).Msg("Skipping unreadable cache entry")
			continue
		}
		if ok {
			results = append(results, result)
		}
	}

	c.record("list", start, nil)
	return results, nil
}

func (c *FileCache) record(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordMetric(StorageMetrics{
		OperationType: op,
		Duration:      time.Since(start).Nanoseconds(),
		Success:       err == nil,
		Backend:       fileBackend,
		Error:         err,
	})
}
