package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/internal/storage"
	"github.com/Caia-Tech/caia-ocr/internal/telemetry"
	"github.com/Caia-Tech/caia-ocr/pkg/ocrmodel"
	"github.com/Caia-Tech/caia-ocr/pkg/rasterizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTools stands in for pdftotext/pdftoppm
type fakeTools struct {
	text       string
	textErr    error
	rasterErr  error
	imageName  string
	textCalls  int32
	rasterCall int32
}

func (f *fakeTools) ExtractText(ctx context.Context, filePath string, page int, outPath string) (string, error) {
	atomic.AddInt32(&f.textCalls, 1)
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.text, os.WriteFile(outPath, []byte(f.text), 0644)
}

func (f *fakeTools) Rasterize(ctx context.Context, filePath string, page int, imagesDir string) (string, error) {
	atomic.AddInt32(&f.rasterCall, 1)
	if f.rasterErr != nil {
		return "", f.rasterErr
	}
	name := f.imageName
	if name == "" {
		name = fmt.Sprintf("page-%02d.png", page)
	}
	path := filepath.Join(imagesDir, name)
	return path, os.WriteFile(path, []byte("png-bytes"), 0644)
}

type countingModel struct {
	text  string
	err   error
	delay time.Duration
	calls int32
}

func (m *countingModel) Recognize(ctx context.Context, prompt string, image []byte) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.text, m.err
}

type staticText string

func (s staticText) PageText(ctx context.Context, path string, page int) (string, error) {
	return string(s), nil
}

func newSession(t *testing.T) session.Session {
	dir := filepath.Join(t.TempDir(), "8c5f6a0e")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0755))
	return session.Session{ID: "8c5f6a0e", Dir: dir}
}

func TestProcessUsesOCRText(t *testing.T) {
	sess := newSession(t)
	tools := &fakeTools{text: "layer text"}
	model := &countingModel{text: "model text"}
	o := New(storage.NewFileCache(nil), tools, model, Options{})

	out, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)

	assert.Equal(t, "model text", out.Result.Text)
	assert.Equal(t, 1, out.Result.Page)
	assert.False(t, out.Cached)
	assert.Equal(t, telemetry.OutcomeOCR, out.Kind)
	assert.JSONEq(t, `{"text":"model text","page":1}`, string(out.Raw))
	assert.FileExists(t, sess.CachePath(1))
	assert.FileExists(t, sess.TextPath(1))
}

func TestProcessIsIdempotent(t *testing.T) {
	sess := newSession(t)
	tools := &fakeTools{text: "layer"}
	model := &countingModel{text: "Alpha"}
	o := New(storage.NewFileCache(nil), tools, model, Options{})

	first, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)

	imagePath := filepath.Join(sess.ImagesDir(), "page-01.png")
	before, err := os.Stat(imagePath)
	require.NoError(t, err)

	second, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Raw, second.Raw)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, int32(1), tools.textCalls)
	assert.Equal(t, int32(1), tools.rasterCall)
	assert.Equal(t, int32(1), model.calls)

	after, err := os.Stat(imagePath)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestProcessCachedEntryIsAuthoritative(t *testing.T) {
	sess := newSession(t)
	require.NoError(t, os.WriteFile(sess.CachePath(4), []byte(`{"text":"old","page":4}`), 0644))
	tools := &fakeTools{text: "new"}
	model := &countingModel{text: "new"}
	o := New(storage.NewFileCache(nil), tools, model, Options{})

	out, err := o.Process(context.Background(), sess, "/doc.pdf", 4)
	require.NoError(t, err)
	assert.Equal(t, "old", out.Result.Text)
	assert.Equal(t, `{"text":"old","page":4}`, string(out.Raw))
	assert.Zero(t, tools.textCalls)
	assert.Zero(t, model.calls)
}

func TestProcessFallsBackWhenRasterizationFails(t *testing.T) {
	sess := newSession(t)
	tools := &fakeTools{text: "born digital text", rasterErr: errors.New("pdftoppm: exit status 99")}
	model := &countingModel{text: "unused"}
	o := New(storage.NewFileCache(nil), tools, model, Options{})

	out, err := o.Process(context.Background(), sess, "/doc.pdf", 2)
	require.NoError(t, err)

	assert.Equal(t, "born digital text", out.Result.Text)
	assert.Equal(t, telemetry.OutcomeTextOnly, out.Kind)
	assert.Zero(t, model.calls)
	assert.FileExists(t, sess.CachePath(2))
}

func TestProcessFailsWithoutTextOrImage(t *testing.T) {
	sess := newSession(t)
	tools := &fakeTools{textErr: errors.New("pdftotext: exit status 1"), rasterErr: errors.New("pdftoppm: exit status 1")}
	o := New(storage.NewFileCache(nil), tools, &countingModel{}, Options{})

	_, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoText)
	assert.Contains(t, err.Error(), "failed to extract text and convert image")
	assert.NoFileExists(t, sess.CachePath(1))
}

func TestProcessFailsWhenImageCannotBeResolved(t *testing.T) {
	sess := newSession(t)
	tools := &fakeTools{rasterErr: fmt.Errorf("%w: page 1", rasterizer.ErrImageNotFound)}
	o := New(storage.NewFileCache(nil), tools, &countingModel{}, Options{})

	_, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestProcessModelFailure(t *testing.T) {
	t.Run("with extracted text", func(t *testing.T) {
		sess := newSession(t)
		o := New(storage.NewFileCache(nil), &fakeTools{text: "layer"}, &countingModel{err: errors.New("quota")}, Options{})

		out, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
		require.NoError(t, err)
		assert.Equal(t, "layer", out.Result.Text)
		assert.Equal(t, telemetry.OutcomeTextFallback, out.Kind)
	})

	t.Run("without extracted text", func(t *testing.T) {
		sess := newSession(t)
		o := New(storage.NewFileCache(nil), &fakeTools{}, &countingModel{err: errors.New("quota")}, Options{})

		_, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recognizing page 1: quota")
		assert.NotErrorIs(t, err, ErrNoText)
		assert.NoFileExists(t, sess.CachePath(1))
	})
}

func TestProcessEmptyOCRUsesExtractedText(t *testing.T) {
	sess := newSession(t)
	o := New(storage.NewFileCache(nil), &fakeTools{text: "layer only"}, &countingModel{text: ""}, Options{})

	out, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)
	assert.Equal(t, "layer only", out.Result.Text)
}

func TestProcessTextExtractionFailureIsNotFatal(t *testing.T) {
	sess := newSession(t)
	tools := &fakeTools{textErr: errors.New("pdftotext: exit status 3")}
	o := New(storage.NewFileCache(nil), tools, &countingModel{text: "scanned"}, Options{TextFallback: staticText("should not be used")})

	out, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)
	assert.Equal(t, "scanned", out.Result.Text)
}

func TestProcessUsesPureGoTextWhenToolMissing(t *testing.T) {
	sess := newSession(t)
	missing := &rasterizer.ToolError{Tool: "pdftotext", Err: &exec.Error{Name: "pdftotext", Err: exec.ErrNotFound}}
	tools := &fakeTools{textErr: missing, rasterErr: errors.New("pdftoppm missing")}
	o := New(storage.NewFileCache(nil), tools, &countingModel{}, Options{TextFallback: staticText("parsed in go")})

	out, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)
	assert.Equal(t, "parsed in go", out.Result.Text)
}

func TestProcessResolvesEveryImageName(t *testing.T) {
	names := []string{"page-1.png", "page-01.png", "page01.png", "page1.png"}

	var results []string
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			sess := newSession(t)
			r := rasterizer.New()
			r.Runner = writeOnRun{path: filepath.Join(sess.ImagesDir(), name)}
			tools := toolsFunc{r: r}
			model := ocrmodel.Func(func(ctx context.Context, prompt string, image []byte) (string, error) {
				assert.Equal(t, ocrmodel.Prompt, prompt)
				return "text from " + string(image[:3]), nil
			})

			out, err := New(storage.NewFileCache(nil), tools, model, Options{}).Process(context.Background(), sess, "/doc.pdf", 1)
			require.NoError(t, err)
			results = append(results, string(out.Raw))
		})
	}

	require.Len(t, results, len(names))
	for _, r := range results {
		assert.Equal(t, `{"text":"text from png","page":1}`, r)
	}
}

func TestProcessPageLocksPreventDuplicateOCR(t *testing.T) {
	sess := newSession(t)
	model := &countingModel{text: "once", delay: 20 * time.Millisecond}
	o := New(storage.NewFileCache(nil), &fakeTools{}, model, Options{PageLocks: true})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
			assert.NoError(t, err)
			assert.Equal(t, "once", out.Result.Text)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&model.calls))
	assert.Zero(t, o.locks.size())
}

func TestProcessAppliesModelTimeout(t *testing.T) {
	sess := newSession(t)
	var hadDeadline bool
	model := ocrmodel.Func(func(ctx context.Context, prompt string, image []byte) (string, error) {
		_, hadDeadline = ctx.Deadline()
		return "ok", nil
	})
	o := New(storage.NewFileCache(nil), &fakeTools{}, model, Options{ModelTimeout: time.Second})

	_, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)
	assert.True(t, hadDeadline)
}

func TestProcessRecordsMetrics(t *testing.T) {
	sess := newSession(t)
	metrics := telemetry.New()
	o := New(storage.NewFileCache(nil), &fakeTools{}, &countingModel{text: "x"}, Options{Metrics: metrics})

	_, err := o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)
	_, err = o.Process(context.Background(), sess, "/doc.pdf", 1)
	require.NoError(t, err)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "caia_ocr_pages_total")
	assert.Contains(t, names, "caia_ocr_tool_duration_seconds")
}

// writeOnRun is a rasterizer.Runner that creates one file on every run
type writeOnRun struct {
	path string
}

func (w writeOnRun) Run(ctx context.Context, name string, args ...string) error {
	if name != "pdftoppm" {
		return nil
	}
	return os.WriteFile(w.path, []byte("png"), 0644)
}

type toolsFunc struct {
	r *rasterizer.Rasterizer
}

func (t toolsFunc) ExtractText(ctx context.Context, filePath string, page int, outPath string) (string, error) {
	return t.r.ExtractText(ctx, filePath, page, outPath)
}

func (t toolsFunc) Rasterize(ctx context.Context, filePath string, page int, imagesDir string) (string, error) {
	return t.r.Rasterize(ctx, filePath, page, imagesDir)
}

func (p *pageLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
