package queue

import (
	"bytes"
	"fmt"
	"io"

	"moments/internal/moments"
)

// memoryStore keeps the queue in memory, making it useful for testing.
// Content does not survive the process.
type memoryStore struct {
	entries []*moments.PendingEntry
	content map[string][]byte
}

var _ queueStore = (*memoryStore)(nil)

// NewMemoryQueue creates an in-memory queue.
// maxSize is the maximum total size of queued originals in bytes; must be positive.
func NewMemoryQueue(encryptor moments.Encryptor, maxSize int64) *Queue {
	q, _ := newQueue(&memoryStore{content: make(map[string][]byte)}, encryptor, maxSize)
	return q
}

// Lock is a no-op: a memory store is never shared beyond its Queue.
func (s *memoryStore) Lock() (func(), error) { return func() {}, nil }

func (s *memoryStore) Load() ([]*moments.PendingEntry, error) {
	out := make([]*moments.PendingEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = clone(e)
	}
	return out, nil
}

func (s *memoryStore) Save(entries []*moments.PendingEntry) error {
	s.entries = make([]*moments.PendingEntry, len(entries))
	for i, e := range entries {
		s.entries[i] = clone(e)
	}
	return nil
}

func (s *memoryStore) PutContent(recordID string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.content[recordID] = data
	return nil
}

func (s *memoryStore) OpenContent(recordID string) (io.ReadCloser, error) {
	data, ok := s.content[recordID]
	if !ok {
		return nil, fmt.Errorf("no content for record %s", recordID)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStore) RemoveContent(recordID string) {
	delete(s.content, recordID)
}

func (s *memoryStore) Sweep(keep map[string]bool) error {
	for id := range s.content {
		if !keep[id] {
			delete(s.content, id)
		}
	}
	return nil
}
