// Package storage persists cropped barcode images as JPEG artifacts in a
// local directory and serves them back by name.
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/vinscan/internal/utils"
)

const (
	// DefaultDir is where artifacts are written unless configured otherwise.
	DefaultDir = "uploads/barcodes"
	// DefaultURLPrefix is the public path artifacts are served under.
	DefaultURLPrefix = "/uploads/barcodes"
	// DefaultQuality is the JPEG quality used for artifacts.
	DefaultQuality = 100

	artifactExt = ".jpg"
)

var (
	// ErrNotFound is returned by Open when no artifact has the given name.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned by Open for names that could escape the store directory.
	ErrInvalidName = errors.New("invalid artifact name")
)

// SaveError reports a failure to persist an artifact.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Artifact describes a saved barcode image.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Link string `json:"link"`
}

// Option configures a LocalStore.
type Option func(*LocalStore)

// WithQuality sets the JPEG quality (1-100) used by Save.
func WithQuality(q int) Option {
	return func(s *LocalStore) { s.quality = q }
}

// LocalStore writes artifacts to a directory on the local filesystem. It is
// safe for concurrent use; every saved artifact gets a fresh random name.
type LocalStore struct {
	dir       string
	urlPrefix string
	quality   int
}

// NewLocalStore creates a store rooted at dir whose links start with urlPrefix.
// Call Init before the first Save.
func NewLocalStore(dir, urlPrefix string, opts ...Option) *LocalStore {
	if dir == "" {
		dir = DefaultDir
	}
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	s := &LocalStore{
		dir:       filepath.Clean(dir),
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		quality:   DefaultQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory artifacts are written to.
func (s *LocalStore) Dir() string { return s.dir }

// URLPrefix returns the public path prefix of artifact links.
func (s *LocalStore) URLPrefix() string { return s.urlPrefix }

// Init creates the store directory. It is idempotent.
func (s *LocalStore) Init() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", s.dir, err)
	}
	return nil
}

// Save encodes img as JPEG under a new random name and returns its artifact.
// The file is written to a temporary name first and renamed into place.
func (s *LocalStore) Save(img image.Image) (Artifact, error) {
	if img == nil {
		return Artifact{}, &SaveError{Err: errors.New("nil image")}
	}

	name, err := newName()
	if err != nil {
		return Artifact{}, &SaveError{Err: fmt.Errorf("generate name: %w", err)}
	}
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".tmp-*"+artifactExt)
	if err != nil {
		return Artifact{}, &SaveError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := utils.EncodeJPEG(tmp, img, s.quality); err != nil {
		_ = tmp.Close()
		cleanup()
		return Artifact{}, &SaveError{Path: path, Err: fmt.Errorf("encode jpeg: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return Artifact{}, &SaveError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return Artifact{}, &SaveError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return Artifact{}, &SaveError{Path: path, Err: err}
	}

	slog.Debug("Artifact saved", "name", name, "path", path)
	return Artifact{Name: name, Path: path, Link: s.Link(name)}, nil
}

// Link returns the public URL path for an artifact name.
func (s *LocalStore) Link(name string) string {
	return s.urlPrefix + "/" + name
}

// Open returns the artifact file with the given name. The caller closes it.
func (s *LocalStore) Open(name string) (*os.File, error) {
	if !ValidName(name) {
		return nil, ErrInvalidName
	}
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path) //nolint:gosec // G304: name validated above
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// ValidName reports whether name is a plain file name that stays inside the
// store directory and is not hidden.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}

func newName() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]) + artifactExt, nil
}
