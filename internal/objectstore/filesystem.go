package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"moments/internal/moments"
)

// FileSystemStore is a filesystem-based implementation of moments.ObjectStore.
// Objects are stored under root using their slash-separated path:
//
//	<root>/
//	  <moment-slug>/
//	    <generated-name>.jpg
//
// Returned URLs are file:// URLs unless a public base URL is configured,
// e.g. when root is served by a static web server.
type FileSystemStore struct {
	root          string
	publicBaseURL string
}

// NewFileSystemStore creates a store rooted at the given path.
func NewFileSystemStore(root, publicBaseURL string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	return &FileSystemStore{root: abs, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Put writes the object atomically. Writing the same path again replaces it.
func (s *FileSystemStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := WriteFileAtomic(dest, r, size); err != nil {
		return "", err
	}
	return s.URL(path), nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *FileSystemStore) Delete(ctx context.Context, path string) error {
	dest, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

// Open returns a reader for a stored object.
func (s *FileSystemStore) Open(path string) (io.ReadCloser, error) {
	dest, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// URL returns the public URL of an object path.
func (s *FileSystemStore) URL(path string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + strings.TrimLeft(path, "/")
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(path)))}
	return u.String()
}

// ValidateSetup verifies that the store root is an accessible directory.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}
	return nil
}

// resolve maps an object path into root, rejecting paths that escape it.
func (s *FileSystemStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + path))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object path: %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

// WriteFileAtomic writes data from r to destPath using a temp file + rename.
// The write fails if the byte count differs from expectedSize.
func WriteFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements moments.ObjectStore
var _ moments.ObjectStore = (*FileSystemStore)(nil)
