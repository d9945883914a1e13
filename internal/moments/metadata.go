package moments

import (
	"context"
	"time"
)

// PlaceholderAssetRef is stored as an ImageRecord's original-asset reference
// until the full-resolution original has been uploaded and reconciled.
const PlaceholderAssetRef = "pending"

// ImageRecord is the canonical record of a contribution.
type ImageRecord struct {
	ID               string
	OptimizedURL     string
	OptimizedPath    string
	OriginalAssetRef string
	CategoryID       string
	AuthorID         string
	AuthorName       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OriginalSynced reports whether the record points at a real original asset.
func (r *ImageRecord) OriginalSynced() bool {
	return r.OriginalAssetRef != "" && r.OriginalAssetRef != PlaceholderAssetRef
}

// RecordFields are the fields written when a record is created.
type RecordFields struct {
	OptimizedURL     string
	OptimizedPath    string
	OriginalAssetRef string
	CategoryID       string
	AuthorID         string
	AuthorName       string
	Timestamp        time.Time
}

// RecordPatch is a partial update. Nil fields are left unchanged.
type RecordPatch struct {
	OriginalAssetRef *string
}

// MetadataRepository stores ImageRecords.
// Create assigns the record ID. Get returns nil, nil when the record does not exist.
// Update and Delete of a missing record return an error and nil respectively.
type MetadataRepository interface {
	Create(ctx context.Context, fields RecordFields) (string, error)
	Get(ctx context.Context, id string) (*ImageRecord, error)
	Update(ctx context.Context, id string, patch RecordPatch) error
	Delete(ctx context.Context, id string) error
}
