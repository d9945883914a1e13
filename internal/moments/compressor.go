package moments

import "context"

// Artifact is the optimized rendition of a photo.
type Artifact struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// Compressor turns a raw photo into an Artifact within configured bounds.
type Compressor interface {
	Compress(ctx context.Context, raw []byte) (*Artifact, error)
}
