package testutil

import (
	"testing"

	"moments/internal/compress"
	"moments/internal/config"
	"moments/internal/database"
	"moments/internal/moments"
	"moments/internal/queue"
)

// Pipeline is a fully wired UploadService over in-memory fakes.
type Pipeline struct {
	Service  *moments.UploadService
	Syncer   *moments.Syncer
	DB       *database.SQLiteDatabase
	Store    *FailingStore
	Dest     *FlakyDestination
	Gate     *ScriptedGate
	Feed     *FailingFeed
	Metadata *FailingMetadata
	Queue    *queue.Queue
	Clock    *StubClock
	IDs      *StubIDGenerator
}

type pipelineConfig struct {
	options  moments.Options
	policy   moments.RetryPolicy
	queueMax int64
}

// PipelineOption adjusts a test pipeline.
type PipelineOption func(*pipelineConfig)

// WithMaxShots caps published contributions per device.
func WithMaxShots(n int) PipelineOption {
	return func(c *pipelineConfig) { c.options.MaxShots = n }
}

// WithPurgeRejected enables purging of rejected contributions.
func WithPurgeRejected() PipelineOption {
	return func(c *pipelineConfig) { c.options.PurgeRejected = true }
}

// WithRetryPolicy sets the sync retry policy.
func WithRetryPolicy(p moments.RetryPolicy) PipelineOption {
	return func(c *pipelineConfig) { c.policy = p }
}

// WithQueueMaxSize bounds the queue to n bytes of originals.
func WithQueueMaxSize(n int64) PipelineOption {
	return func(c *pipelineConfig) { c.queueMax = n }
}

// NewTestPipeline wires an UploadService with a fixed clock, sequential IDs,
// an in-memory queue and the device database as metadata repository and feed.
func NewTestPipeline(t *testing.T, opts ...PipelineOption) *Pipeline {
	t.Helper()

	clock := FixedClock()
	ids := NewStubIDGenerator()
	db := NewTestDatabase(t, clock)

	cfg := pipelineConfig{policy: moments.DefaultRetryPolicy(), queueMax: queue.DefaultMaxSize}
	for _, o := range opts {
		o(&cfg)
	}
	options := cfg.options

	p := &Pipeline{
		DB:       db,
		Store:    NewFailingStore(),
		Dest:     NewFlakyDestination(),
		Gate:     NewScriptedGate(),
		Feed:     &FailingFeed{FeedWriter: db},
		Metadata: &FailingMetadata{MetadataRepository: db},
		Queue:    queue.NewMemoryQueue(NewTestEncryptor(), cfg.queueMax),
		Clock:    clock,
		IDs:      ids,
	}

	p.Syncer = moments.NewSyncer(p.Queue, p.Metadata, p.Dest, cfg.policy, options.Timeouts, nil, clock)
	p.Service = moments.NewUploadService(moments.Components{
		Compressor: compress.NewImagingCompressor(config.CompressionConfig{}),
		Store:      p.Store,
		Metadata:   p.Metadata,
		Queue:      p.Queue,
		Syncer:     p.Syncer,
		Gate:       p.Gate,
		Feed:       p.Feed,
		Quota:      db,
		History:    db,
		Clock:      clock,
		IDs:        ids,
	}, options)

	return p
}

// Task returns a valid UploadTask carrying a small JPEG.
func Task(t *testing.T, moment string, sync moments.SyncPreference) *moments.UploadTask {
	t.Helper()
	return &moments.UploadTask{
		File:     moments.RawFile{Name: "IMG_0001.jpg", MimeType: "image/jpeg", Data: JPEG(t, 64, 48)},
		MomentID: moment,
		Author:   moments.Author{ID: "guest-1", Name: "Ana"},
		Device:   moments.DeviceIdentity{ID: "device-1", Name: "Ana's phone"},
		Sync:     sync,
	}
}
