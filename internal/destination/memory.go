package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"moments/internal/moments"
)

// MemoryDestination keeps originals in memory. It is useful for testing.
// This implementation is safe for concurrent use.
type MemoryDestination struct {
	mu       sync.Mutex
	next     int
	uploads  map[string][]byte
	types    map[string]string
	requests []moments.DestinationRequest
}

// NewMemoryDestination creates an empty MemoryDestination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{
		uploads: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (d *MemoryDestination) Request(ctx context.Context, r moments.DestinationRequest) (*moments.Destination, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.requests = append(d.requests, r)
	ref := fmt.Sprintf("original-%d", d.next)
	return &moments.Destination{UploadURL: "memory://originals/" + ref, AssetRef: ref}, nil
}

func (d *MemoryDestination) Upload(ctx context.Context, dest *moments.Destination, r io.Reader, size int64, contentType string) (string, error) {
	data, err := readAll(r, size)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads[dest.AssetRef] = data
	d.types[dest.AssetRef] = contentType
	return dest.AssetRef, nil
}

// Get returns an uploaded original and its content type.
func (d *MemoryDestination) Get(assetRef string) ([]byte, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.uploads[assetRef]
	return bytes.Clone(data), d.types[assetRef], ok
}

// UploadCount returns the number of completed uploads.
func (d *MemoryDestination) UploadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.uploads)
}

// Requests returns the destination requests received so far.
func (d *MemoryDestination) Requests() []moments.DestinationRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]moments.DestinationRequest(nil), d.requests...)
}

var _ moments.OriginalDestination = (*MemoryDestination)(nil)
