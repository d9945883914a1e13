package destination

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"moments/internal/config"
	"moments/internal/moments"
	"moments/internal/objectstore"
)

// DefaultPresignExpiry is how long an issued upload URL stays valid.
const DefaultPresignExpiry = 15 * time.Minute

// S3PresignDestination issues presigned PUT URLs into an S3 bucket.
// Originals are keyed <prefix>/<moment-slug>/<id>-<file name>; the key is the
// asset reference.
type S3PresignDestination struct {
	presign *s3.PresignClient
	bucket  string
	prefix  string
	expiry  time.Duration
	ids     moments.IDGenerator
	putter  *putter
}

// NewS3PresignDestination creates an S3PresignDestination from configuration.
func NewS3PresignDestination(ctx context.Context, cfg config.DestinationConfig, client *http.Client) (*S3PresignDestination, error) {
	s3client, err := objectstore.NewS3Client(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	expiry := cfg.PresignExpiry.Duration
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &S3PresignDestination{
		presign: s3.NewPresignClient(s3client),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		expiry:  expiry,
		ids:     moments.UUIDGenerator{},
		putter:  newPutter(client),
	}, nil
}

func (d *S3PresignDestination) key(r moments.DestinationRequest) string {
	name := d.ids.New() + "-" + baseName(r.FileName)
	return path.Join(d.prefix, moments.MomentSlug(r.FolderID), name)
}

func (d *S3PresignDestination) Request(ctx context.Context, r moments.DestinationRequest) (*moments.Destination, error) {
	key := d.key(r)
	req, err := d.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(r.FileType),
	}, s3.WithPresignExpires(d.expiry))
	if err != nil {
		return nil, fmt.Errorf("presigning upload of %s: %w", key, err)
	}
	return &moments.Destination{UploadURL: req.URL, AssetRef: key}, nil
}

func (d *S3PresignDestination) Upload(ctx context.Context, dest *moments.Destination, r io.Reader, size int64, contentType string) (string, error) {
	data, err := readAll(r, size)
	if err != nil {
		return "", err
	}
	if _, err := d.putter.put(ctx, dest.UploadURL, data, contentType); err != nil {
		return "", err
	}
	return dest.AssetRef, nil
}

var _ moments.OriginalDestination = (*S3PresignDestination)(nil)
