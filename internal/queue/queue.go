package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"moments/internal/moments"
)

// Queue implements moments.PendingQueue using a pluggable queueStore for
// the storage mechanics. Originals are encrypted before they reach the store.
// All shared algorithm logic lives here.
//
// The store is the only copy of the entry list: every operation takes the
// store lock and reloads it, so several processes (a long-running sync
// worker and short-lived submits) can share one queue directory.
type Queue struct {
	store     queueStore
	encryptor moments.Encryptor
	maxSize   int64

	mu sync.Mutex
}

var _ moments.PendingQueue = (*Queue)(nil)

func newQueue(store queueStore, encryptor moments.Encryptor, maxSize int64) (*Queue, error) {
	q := &Queue{store: store, encryptor: encryptor, maxSize: maxSize}

	entries, unlock, err := q.load()
	if err != nil {
		return nil, err
	}
	defer unlock()

	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e.RecordID] = true
	}
	// Content written before a crash but never recorded in the manifest.
	// Enqueue writes content and manifest under the same lock, so nothing
	// live is swept.
	if err := store.Sweep(keep); err != nil {
		return nil, fmt.Errorf("sweeping orphaned content: %w", err)
	}
	return q, nil
}

// load locks the store and reads the current entries. The caller must call
// unlock when done with them.
func (q *Queue) load() (entries []*moments.PendingEntry, unlock func(), err error) {
	q.mu.Lock()
	release, err := q.store.Lock()
	if err != nil {
		q.mu.Unlock()
		return nil, nil, fmt.Errorf("locking queue: %w", err)
	}
	unlock = func() {
		release()
		q.mu.Unlock()
	}

	entries, err = q.store.Load()
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("loading queue: %w", err)
	}
	return entries, unlock, nil
}

// Enqueue stores an original and its entry. Enqueueing a record that is
// already queued is a no-op.
func (q *Queue) Enqueue(ctx context.Context, entry *moments.PendingEntry, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.RecordID == "" {
		return fmt.Errorf("entry has no record id")
	}

	entries, unlock, err := q.load()
	if err != nil {
		return err
	}
	defer unlock()

	if indexOf(entries, entry.RecordID) >= 0 {
		return nil
	}

	size := int64(len(content))
	if totalSize(entries)+size > q.maxSize {
		return fmt.Errorf("queue full: would exceed max size of %d bytes", q.maxSize)
	}

	var ciphertext bytes.Buffer
	if err := q.encryptor.Encrypt(bytes.NewReader(content), &ciphertext); err != nil {
		return fmt.Errorf("encrypting original: %w", err)
	}
	if err := q.store.PutContent(entry.RecordID, &ciphertext); err != nil {
		return fmt.Errorf("storing original: %w", err)
	}

	e := *entry
	e.ContentHandle = entry.RecordID
	e.Size = size
	if e.State == "" {
		e.State = moments.EntryPending
	}

	if err := q.store.Save(append(entries, &e)); err != nil {
		q.store.RemoveContent(entry.RecordID)
		return fmt.Errorf("saving queue: %w", err)
	}
	return nil
}

// Due returns pending entries ready for an attempt at now, oldest first.
func (q *Queue) Due(ctx context.Context, now time.Time) ([]*moments.PendingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var due []*moments.PendingEntry
	for _, e := range entries {
		if e.State == moments.EntryPending && !e.NextAttemptAt.After(now) {
			due = append(due, clone(e))
		}
	}
	return due, nil
}

// Get returns the entry for a record, or nil if it is not queued.
func (q *Queue) Get(ctx context.Context, recordID string) (*moments.PendingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if i := indexOf(entries, recordID); i >= 0 {
		return clone(entries[i]), nil
	}
	return nil, nil
}

// Open returns the decrypted original of a queued record.
func (q *Queue) Open(ctx context.Context, recordID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if indexOf(entries, recordID) < 0 {
		return nil, fmt.Errorf("record %s is not queued", recordID)
	}
	rc, err := q.store.OpenContent(recordID)
	if err != nil {
		return nil, fmt.Errorf("opening original: %w", err)
	}
	defer rc.Close()

	var plaintext bytes.Buffer
	if err := q.encryptor.Decrypt(rc, &plaintext); err != nil {
		return nil, fmt.Errorf("decrypting original: %w", err)
	}
	return io.NopCloser(&plaintext), nil
}

// Update persists the sync bookkeeping of an entry (state, attempts, last
// error, next attempt). Content fields cannot be changed.
func (q *Queue) Update(ctx context.Context, entry *moments.PendingEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return err
	}
	defer unlock()

	i := indexOf(entries, entry.RecordID)
	if i < 0 {
		return fmt.Errorf("record %s is not queued", entry.RecordID)
	}

	e := entries[i]
	e.State = entry.State
	e.Attempts = entry.Attempts
	e.LastError = entry.LastError
	e.NextAttemptAt = entry.NextAttemptAt

	if err := q.store.Save(entries); err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	return nil
}

// Remove deletes an entry and its content. Removing an unknown record is a no-op.
func (q *Queue) Remove(ctx context.Context, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return err
	}
	defer unlock()

	i := indexOf(entries, recordID)
	if i < 0 {
		return nil
	}

	if err := q.store.Save(append(entries[:i], entries[i+1:]...)); err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	q.store.RemoveContent(recordID)
	return nil
}

// List returns entries in the given state, or all entries when state is empty.
func (q *Queue) List(ctx context.Context, state moments.EntryState) ([]*moments.PendingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*moments.PendingEntry
	for _, e := range entries {
		if state == "" || e.State == state {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

// Count returns the number of queued entries in any state.
func (q *Queue) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return len(entries), nil
}

// Size returns the total size of queued originals in bytes.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entries, unlock, err := q.load()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return totalSize(entries), nil
}

func indexOf(entries []*moments.PendingEntry, recordID string) int {
	for i, e := range entries {
		if e.RecordID == recordID {
			return i
		}
	}
	return -1
}

func totalSize(entries []*moments.PendingEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total
}

func clone(e *moments.PendingEntry) *moments.PendingEntry {
	c := *e
	return &c
}
