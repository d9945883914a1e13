package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"moments/internal/moments"
	"moments/internal/objectstore"
)

const manifestVersion = 1

// fileSystemStore keeps the queue in a directory:
//
//	<dir>/
//	  queue.lock          (advisory lock shared by every process using dir)
//	  queue.json          (manifest: entries in enqueue order)
//	  content/
//	    <record_id>.bin   (encrypted original)
//
// The manifest is rewritten atomically on every change, so a crash leaves
// either the old or the new list, never a torn one.
type fileSystemStore struct {
	lock         *flock.Flock
	manifestPath string
	contentDir   string
}

type manifest struct {
	Version int                     `json:"version"`
	Entries []*moments.PendingEntry `json:"entries"`
}

var _ queueStore = (*fileSystemStore)(nil)

// NewFileSystemQueue creates a queue persisted under dir.
// maxSize is the maximum total size of queued originals in bytes; must be positive.
func NewFileSystemQueue(dir string, encryptor moments.Encryptor, maxSize int64) (*Queue, error) {
	contentDir := filepath.Join(dir, "content")
	if err := os.MkdirAll(contentDir, 0700); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}

	store := &fileSystemStore{
		lock:         flock.New(filepath.Join(dir, "queue.lock")),
		manifestPath: filepath.Join(dir, "queue.json"),
		contentDir:   contentDir,
	}
	return newQueue(store, encryptor, maxSize)
}

func (s *fileSystemStore) Lock() (func(), error) {
	if err := s.lock.Lock(); err != nil {
		return nil, err
	}
	return func() { s.lock.Unlock() }, nil
}

func (s *fileSystemStore) Load() ([]*moments.PendingEntry, error) {
	data, err := os.ReadFile(s.manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m.Entries, nil
}

func (s *fileSystemStore) Save(entries []*moments.PendingEntry) error {
	if entries == nil {
		entries = []*moments.PendingEntry{}
	}
	data, err := json.MarshalIndent(manifest{Version: manifestVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return objectstore.WriteFileAtomic(s.manifestPath, bytes.NewReader(data), int64(len(data)))
}

func (s *fileSystemStore) PutContent(recordID string, r io.Reader) error {
	p, err := s.contentPath(recordID)
	if err != nil {
		return err
	}
	return objectstore.WriteFileAtomic(p, r, -1)
}

func (s *fileSystemStore) OpenContent(recordID string) (io.ReadCloser, error) {
	p, err := s.contentPath(recordID)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *fileSystemStore) RemoveContent(recordID string) {
	if p, err := s.contentPath(recordID); err == nil {
		os.Remove(p)
	}
}

func (s *fileSystemStore) Sweep(keep map[string]bool) error {
	dirEntries, err := os.ReadDir(s.contentDir)
	if err != nil {
		return fmt.Errorf("reading content directory: %w", err)
	}
	for _, de := range dirEntries {
		name := de.Name()
		id, ok := strings.CutSuffix(name, ".bin")
		if !ok || keep[id] {
			continue
		}
		if err := os.Remove(filepath.Join(s.contentDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileSystemStore) contentPath(recordID string) (string, error) {
	if recordID == "" || recordID != filepath.Base(recordID) || strings.HasPrefix(recordID, ".") {
		return "", fmt.Errorf("invalid record id %q", recordID)
	}
	return filepath.Join(s.contentDir, recordID+".bin"), nil
}
