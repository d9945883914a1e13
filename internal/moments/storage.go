package moments

import (
	"context"
	"io"
)

// ObjectStore holds optimized artifacts. Put returns a publicly resolvable URL.
type ObjectStore interface {
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

// DestinationRequest asks the original destination where to upload a file.
type DestinationRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FolderID string `json:"folderId"`
}

// Destination is an issued upload target for one original.
// AssetRef is the reference to store if the upload response carries none.
type Destination struct {
	UploadURL string
	AssetRef  string
}

// OriginalDestination issues upload targets for full-resolution originals and
// performs the byte upload. Upload returns the asset reference to reconcile.
type OriginalDestination interface {
	Request(ctx context.Context, req DestinationRequest) (*Destination, error)
	Upload(ctx context.Context, dest *Destination, r io.Reader, size int64, contentType string) (string, error)
}
