package destination

import (
	"context"
	"io"
	"path"

	"moments/internal/moments"
	"moments/internal/objectstore"
)

// FileSystemDestination keeps originals in a local directory, laid out like
// the S3 destination. Useful when the device itself is the archive.
type FileSystemDestination struct {
	store *objectstore.FileSystemStore
	ids   moments.IDGenerator
}

// NewFileSystemDestination creates a destination rooted at root.
func NewFileSystemDestination(root string) (*FileSystemDestination, error) {
	store, err := objectstore.NewFileSystemStore(root, "")
	if err != nil {
		return nil, err
	}
	return &FileSystemDestination{store: store, ids: moments.UUIDGenerator{}}, nil
}

func (d *FileSystemDestination) Request(ctx context.Context, r moments.DestinationRequest) (*moments.Destination, error) {
	key := path.Join(moments.MomentSlug(r.FolderID), d.ids.New()+"-"+baseName(r.FileName))
	return &moments.Destination{UploadURL: d.store.URL(key), AssetRef: key}, nil
}

func (d *FileSystemDestination) Upload(ctx context.Context, dest *moments.Destination, r io.Reader, size int64, contentType string) (string, error) {
	if _, err := d.store.Put(ctx, dest.AssetRef, r, size, contentType); err != nil {
		return "", err
	}
	return dest.AssetRef, nil
}

// Open returns a reader for a stored original.
func (d *FileSystemDestination) Open(assetRef string) (io.ReadCloser, error) {
	return d.store.Open(assetRef)
}

var _ moments.OriginalDestination = (*FileSystemDestination)(nil)
