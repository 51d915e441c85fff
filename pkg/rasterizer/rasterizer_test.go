package rasterizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner fakes the poppler tools by writing files named by the test
type scriptedRunner struct {
	calls   [][]string
	files   map[string]string // path -> content written on any call
	failFor map[string]error  // tool name -> error
}

func (s *scriptedRunner) Run(ctx context.Context, name string, args ...string) error {
	s.calls = append(s.calls, append([]string{name}, args...))
	if err := s.failFor[name]; err != nil {
		return err
	}
	for path, content := range s.files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func TestResolverFindsEveryDefaultPattern(t *testing.T) {
	tests := []struct {
		name string
		file string
		page int
	}{
		{"dash unpadded", "page-3.png", 3},
		{"dash padded", "page-03.png", 3},
		{"no dash padded", "page03.png", 3},
		{"no dash unpadded", "page3.png", 3},
		{"dash literal zero", "page-012.png", 12},
		{"three digit page", "page-120.png", 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, tt.file), []byte("png"), 0644))

			path, err := NewResolver(nil).Resolve(dir, tt.page)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.file), path)
		})
	}
}

func TestResolverFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-01.png", "page1.png", "page-1.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
	}

	path, err := NewResolver(nil).Resolve(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "page-1.png"), path)
}

func TestResolverCandidateOrder(t *testing.T) {
	candidates := NewResolver(nil).Candidates("/img", 7)
	assert.Equal(t, []string{
		"/img/page-7.png",
		"/img/page-07.png",
		"/img/page07.png",
		"/img/page7.png",
		"/img/page-07.png",
	}, candidates)
}

func TestResolverNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page-2.png"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "page-1.png"), 0755))

	_, err := NewResolver(nil).Resolve(dir, 1)
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestParsePatterns(t *testing.T) {
	patterns, err := ParsePatterns(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPatterns, patterns)

	patterns, err = ParsePatterns([]string{"scan-%03d.png"})
	require.NoError(t, err)
	assert.Equal(t, "scan-004.png", patterns[0].Name(4))

	for _, bad := range []string{"page.png", "page-%s.png", "%d-%d.png", "../page-%d.png"} {
		_, err := ParsePatterns([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page-9.png"), []byte("abc"), 0644))

	assert.Equal(t, []string{"page-9.png 3"}, ListDir(dir))
	assert.Contains(t, ListDir(filepath.Join(dir, "missing"))[0], "unreadable")
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "page-2.txt")
	runner := &scriptedRunner{files: map[string]string{out: "hello page two"}}
	r := New()
	r.Runner = runner

	text, err := r.ExtractText(context.Background(), "/in/doc.pdf", 2, out)
	require.NoError(t, err)
	assert.Equal(t, "hello page two", text)
	assert.Equal(t, [][]string{{"pdftotext", "-f", "2", "-l", "2", "/in/doc.pdf", out}}, runner.calls)
}

func TestExtractTextNoOutputFile(t *testing.T) {
	r := New()
	r.Runner = &scriptedRunner{}

	text, err := r.ExtractText(context.Background(), "/in/doc.pdf", 1, filepath.Join(t.TempDir(), "none.txt"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestRasterize(t *testing.T) {
	dir := t.TempDir()
	runner := &scriptedRunner{files: map[string]string{filepath.Join(dir, "page-05.png"): "png"}}
	r := New()
	r.Runner = runner

	path, err := r.Rasterize(context.Background(), "/in/doc.pdf", 5, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "page-05.png"), path)
	assert.Equal(t, [][]string{{
		"pdftoppm", "-png", "-f", "5", "-l", "5", "-r", "300", "/in/doc.pdf", filepath.Join(dir, "page"),
	}}, runner.calls)
}

func TestRasterizeToolFailure(t *testing.T) {
	boom := &ToolError{Tool: "pdftoppm", Err: errors.New("exit status 1"), Stderr: "Syntax Error"}
	r := New()
	r.Runner = &scriptedRunner{failFor: map[string]error{"pdftoppm": boom}}

	_, err := r.Rasterize(context.Background(), "/in/doc.pdf", 1, t.TempDir())
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "pdftoppm failed: exit status 1: Syntax Error", toolErr.Error())
}

func TestRasterizeImageMissing(t *testing.T) {
	r := New()
	r.Runner = &scriptedRunner{}

	_, err := r.Rasterize(context.Background(), "/in/doc.pdf", 1, t.TempDir())
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	err := ExecRunner{}.Run(context.Background(), "caia-ocr-no-such-tool", "-v")

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "caia-ocr-no-such-tool", toolErr.Tool)
	assert.Equal(t, []string{"-v"}, toolErr.Args)
}

func TestTimeoutIsApplied(t *testing.T) {
	var deadline time.Time
	r := New()
	r.Timeout = time.Minute
	r.Runner = runnerFunc(func(ctx context.Context, name string, args ...string) error {
		deadline, _ = ctx.Deadline()
		return nil
	})

	_, err := r.ExtractText(context.Background(), "/in/doc.pdf", 1, filepath.Join(t.TempDir(), "x.txt"))
	require.NoError(t, err)
	assert.False(t, deadline.IsZero())
}

type runnerFunc func(ctx context.Context, name string, args ...string) error

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}
