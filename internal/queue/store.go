package queue

import (
	"io"

	"moments/internal/moments"
)

// queueStore abstracts the storage mechanics for a pending queue.
// Queue calls every other method between Lock and the release it returns,
// so stores do not need to be safe for concurrent use.
type queueStore interface {
	// Lock excludes other holders of the same store, including other
	// processes, until the returned release func is called.
	Lock() (release func(), err error)

	// Load returns the persisted entries in enqueue order.
	Load() ([]*moments.PendingEntry, error)

	// Save replaces the persisted entry list.
	Save(entries []*moments.PendingEntry) error

	// PutContent stores already-encrypted content for a record,
	// replacing any existing content.
	PutContent(recordID string, r io.Reader) error

	// OpenContent returns a reader for a record's stored content.
	OpenContent(recordID string) (io.ReadCloser, error)

	// RemoveContent removes a record's content (best-effort).
	RemoveContent(recordID string)

	// Sweep removes stored content for records not in keep.
	Sweep(keep map[string]bool) error
}
