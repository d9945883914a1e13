package moments

import (
	"context"
	"io"
	"time"
)

// EntryState is the sync state of a PendingEntry.
type EntryState string

const (
	EntryPending   EntryState = "pending"
	EntryExhausted EntryState = "exhausted"
)

// PendingEntry is an original waiting to be uploaded. Its identity is the
// RecordID of the ImageRecord it completes.
type PendingEntry struct {
	RecordID      string     `json:"linkedRecordId"`
	FileName      string     `json:"fileName"`
	FolderID      string     `json:"folderId"`
	MimeType      string     `json:"mimeType"`
	AuthorID      string     `json:"authorId"`
	DeviceID      string     `json:"deviceId"`
	ContentHandle string     `json:"rawFileHandle"`
	Size          int64      `json:"size"`
	State         EntryState `json:"state"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"lastError,omitempty"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	EnqueuedAt    time.Time  `json:"enqueuedAt"`
}

// PendingQueue is the device-resident store of deferred originals.
// Entries must survive a process restart until removed.
//
// Enqueue is idempotent by RecordID. Due returns pending entries whose
// NextAttemptAt is not after now, oldest enqueue first. Get returns nil, nil
// for an unknown record. Remove of an unknown record is a no-op.
type PendingQueue interface {
	Enqueue(ctx context.Context, entry *PendingEntry, content []byte) error
	Due(ctx context.Context, now time.Time) ([]*PendingEntry, error)
	Get(ctx context.Context, recordID string) (*PendingEntry, error)
	Open(ctx context.Context, recordID string) (io.ReadCloser, error)
	Update(ctx context.Context, entry *PendingEntry) error
	Remove(ctx context.Context, recordID string) error
	List(ctx context.Context, state EntryState) ([]*PendingEntry, error)
	Count(ctx context.Context) (int, error)
}

// Condition reports whether deferred originals may be uploaded now,
// e.g. because a preferred network is available.
type Condition interface {
	Ready(ctx context.Context) (bool, error)
}

// Always is a Condition that always holds.
type Always struct{}

func (Always) Ready(context.Context) (bool, error) { return true, nil }
