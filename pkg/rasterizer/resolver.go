package rasterizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrImageNotFound is returned when none of the candidate names exist
var ErrImageNotFound = errors.New("generated image not found after conversion")

// NamePattern is a fmt format with a single integer verb for the page
// number, e.g. "page-%02d.png".
type NamePattern string

// Name renders the file name for page
func (p NamePattern) Name(page int) string {
	return fmt.Sprintf(string(p), page)
}

// DefaultPatterns are the names pdftoppm has been seen to produce, in the
// order they are tried.
var DefaultPatterns = []NamePattern{
	"page-%d.png",
	"page-%02d.png",
	"page%02d.png",
	"page%d.png",
	"page-0%d.png",
}

var patternSyntax = regexp.MustCompile(`^[^%]*%0?[0-9]*d[^%]*$`)

// ParsePatterns validates configured patterns. An empty list yields DefaultPatterns.
func ParsePatterns(raw []string) ([]NamePattern, error) {
	if len(raw) == 0 {
		return DefaultPatterns, nil
	}
	patterns := make([]NamePattern, 0, len(raw))
	for _, r := range raw {
		if !patternSyntax.MatchString(r) {
			return nil, fmt.Errorf("image pattern %q must contain exactly one integer verb", r)
		}
		if strings.ContainsAny(r, `/\`) {
			return nil, fmt.Errorf("image pattern %q must be a bare file name", r)
		}
		patterns = append(patterns, NamePattern(r))
	}
	return patterns, nil
}

// Resolver locates the image rendered for a page
type Resolver struct {
	Patterns []NamePattern
}

// NewResolver creates a resolver; nil patterns means DefaultPatterns
func NewResolver(patterns []NamePattern) *Resolver {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Resolver{Patterns: patterns}
}

// Candidates returns the full paths tried for page, in priority order
func (r *Resolver) Candidates(dir string, page int) []string {
	paths := make([]string, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		paths = append(paths, filepath.Join(dir, p.Name(page)))
	}
	return paths
}

// Resolve returns the first candidate that exists as a regular file
func (r *Resolver) Resolve(dir string, page int) (string, error) {
	for _, path := range r.Candidates(dir, page) {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: page %d in %s", ErrImageNotFound, page, dir)
}

// ListDir describes the directory contents, one "name size" entry per file.
// It is only used for diagnostics when resolution fails.
func ListDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{fmt.Sprintf("<unreadable: %v>", err)}
	}
	listing := make([]string, 0, len(entries))
	for _, entry := range entries {
		size := int64(-1)
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		listing = append(listing, fmt.Sprintf("%s %d", entry.Name(), size))
	}
	return listing
}
