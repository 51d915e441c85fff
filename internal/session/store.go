// Package session maps upload session identifiers to their working
// directories on disk.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/google/uuid"
)

const imagesDirName = "images"

var generatedFile = regexp.MustCompile(`^(page-\d+\.txt|ocr-page-\d+\.json)$`)

// ErrNotFound is returned when a session directory does not exist
var ErrNotFound = errors.New("session not found")

// Session is one upload's isolated working directory
type Session struct {
	ID  string
	Dir string
}

// ImagesDir holds the rendered page images
func (s Session) ImagesDir() string {
	return filepath.Join(s.Dir, imagesDirName)
}

// TextPath is where the local text extraction for a page is written
func (s Session) TextPath(page int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("page-%d.txt", page))
}

// CachePath is the per-page OCR cache file
func (s Session) CachePath(page int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("ocr-page-%d.json", page))
}

// Store creates and looks up sessions under a root uploads directory
type Store struct {
	root string
}

// NewStore creates a store rooted at dir
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the uploads directory
func (s *Store) Root() string {
	return s.root
}

// Create allocates a new session, saves the original file into it and
// prepares the images directory. It returns the session and the saved path.
func (s *Store) Create(fileName string, content io.Reader) (Session, string, error) {
	sess := Session{ID: uuid.New().String()}
	sess.Dir = filepath.Join(s.root, sess.ID)

	if err := os.MkdirAll(sess.ImagesDir(), 0755); err != nil {
		return Session{}, "", fmt.Errorf("creating session directory: %w", err)
	}

	filePath := filepath.Join(sess.Dir, sanitizeFileName(fileName))
	f, err := os.Create(filePath)
	if err != nil {
		return Session{}, "", fmt.Errorf("creating %s: %w", filePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return Session{}, "", fmt.Errorf("writing %s: %w", filePath, err)
	}

	logger := logging.GetLogger("session")
	logger.Info().
		Str("session_id", sess.ID).
		Str("file", filePath).
		Msg("Session created")

	return sess, filePath, nil
}

// Get returns an existing session
func (s *Store) Get(id string) (Session, error) {
	if !validID(id) {
		return Session{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	sess := Session{ID: id, Dir: filepath.Join(s.root, id)}
	info, err := os.Stat(sess.Dir)
	if err != nil || !info.IsDir() {
		return Session{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return sess, nil
}

// Exists reports whether the session directory is present
func (s *Store) Exists(id string) bool {
	_, err := s.Get(id)
	return err == nil
}

// Open returns the session owning filePath, which lives directly inside the
// session directory. The directories are created if missing.
func (s *Store) Open(filePath string) (Session, error) {
	id := filepath.Base(filepath.Dir(filePath))
	if !validID(id) {
		return Session{}, fmt.Errorf("%w: cannot derive session from %q", ErrNotFound, filePath)
	}
	sess := Session{ID: id, Dir: filepath.Join(s.root, id)}
	if err := os.MkdirAll(sess.ImagesDir(), 0755); err != nil {
		return Session{}, fmt.Errorf("creating session directory: %w", err)
	}
	return sess, nil
}

// SourceFile returns the uploaded document stored in the session directory
func (s *Store) SourceFile(sess Session) (string, error) {
	entries, err := os.ReadDir(sess.Dir)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrNotFound, sess.ID)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || generatedFile.MatchString(e.Name()) {
			continue
		}
		return filepath.Join(sess.Dir, e.Name()), nil
	}
	return "", fmt.Errorf("%w: no document in session %q", ErrNotFound, sess.ID)
}

// Owns reports whether filePath sits directly inside a session directory of
// this store.
func (s *Store) Owns(filePath string) bool {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}
	sessionDir := filepath.Dir(abs)
	return filepath.Dir(sessionDir) == root && validID(filepath.Base(sessionDir))
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}
