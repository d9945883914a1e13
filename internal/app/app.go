package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"moments/internal/compress"
	"moments/internal/config"
	"moments/internal/database"
	"moments/internal/destination"
	"moments/internal/encryption"
	"moments/internal/feed"
	"moments/internal/metadata"
	"moments/internal/moderation"
	"moments/internal/moments"
	"moments/internal/network"
	"moments/internal/objectstore"
	"moments/internal/queue"
)

// ErrNotReady is returned by Sync when the sync condition does not hold.
var ErrNotReady = errors.New("sync condition not met")

// MomentsApp is the application layer between the CLI and UploadService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw file paths, and releases every connection on Close.
type MomentsApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	queue   *queue.Queue
	feed    moments.FeedWriter
	cond    moments.Condition
	syncer  *moments.Syncer
	service *moments.UploadService
	op      *Operation
	logger  *slog.Logger
	logFile *os.File
	closers []func()
}

// Options tune a MomentsApp beyond what the config file holds.
type Options struct {
	// Verbose also writes informational log lines to stderr.
	Verbose bool
	Clock   moments.Clock
}

// NewMomentsApp creates a fully wired MomentsApp from the given config.
// operation identifies the CLI command being run (e.g. "Submit", "Sync").
// The caller must call Close when done.
func NewMomentsApp(ctx context.Context, cfg *config.Config, operation, parameters string, opts Options) (_ *MomentsApp, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = moments.RealClock{}
	}

	op := NewOperation(operation, parameters, clock.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &MomentsApp{cfg: cfg, op: op, logger: logger, logFile: logFile}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID, clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("queue encryption key not found: run 'moments config init' first")
	}

	q, err := queue.NewQueueFromConfig(cfg.Queue, enc)
	if err != nil {
		return nil, fmt.Errorf("opening queue: %w", err)
	}
	a.queue = q

	store, err := objectstore.NewObjectStoreFromConfig(ctx, cfg.Optimized)
	if err != nil {
		return nil, fmt.Errorf("creating optimized store: %w", err)
	}

	client := &http.Client{}
	dest, err := destination.NewDestinationFromConfig(ctx, cfg.Original, client)
	if err != nil {
		return nil, fmt.Errorf("creating original destination: %w", err)
	}

	gate, err := moderation.NewGateFromConfig(cfg.Moderation, client)
	if err != nil {
		return nil, fmt.Errorf("creating moderation gate: %w", err)
	}

	repo, closeRepo, err := metadata.NewRepositoryFromConfig(ctx, cfg.Metadata, db, clock)
	if err != nil {
		return nil, fmt.Errorf("creating metadata repository: %w", err)
	}
	a.closers = append(a.closers, closeRepo)

	fw, closeFeed, err := feed.NewFeedFromConfig(ctx, cfg.Feed, db)
	if err != nil {
		return nil, fmt.Errorf("creating feed: %w", err)
	}
	a.closers = append(a.closers, closeFeed)
	a.feed = fw

	cond, err := network.NewConditionFromConfig(cfg.Sync)
	if err != nil {
		return nil, fmt.Errorf("creating sync condition: %w", err)
	}
	a.cond = cond

	log := &slogAdapter{l: logger}
	timeouts := timeoutsFromConfig(cfg.Timeouts)
	a.syncer = moments.NewSyncer(q, repo, dest, queue.RetryPolicyFromConfig(cfg.Queue), timeouts, log, clock)
	a.service = moments.NewUploadService(moments.Components{
		Compressor: compress.NewImagingCompressor(cfg.Compression),
		Store:      store,
		Metadata:   repo,
		Queue:      q,
		Syncer:     a.syncer,
		Gate:       gate,
		Feed:       fw,
		Quota:      db,
		History:    db,
		Logger:     log,
		Clock:      clock,
		IDs:        moments.UUIDGenerator{},
	}, moments.Options{
		MaxShots:      cfg.Quota.MaxShots,
		PurgeRejected: cfg.Moderation.PurgeRejected,
		Timeouts:      timeouts,
	})

	logger.Info("operation started", "operation", op.Name, "parameters", op.Parameters)
	return a, nil
}

func timeoutsFromConfig(t config.TimeoutsConfig) moments.Timeouts {
	return moments.Timeouts{
		Compress: t.Compress.Duration,
		Upload:   t.Upload.Duration,
		Register: t.Register.Duration,
		Queue:    t.Queue.Duration,
		Original: t.Original.Duration,
		Moderate: t.Moderate.Duration,
		Publish:  t.Publish.Duration,
	}
}

// SubmitRequest names a photo on disk and who contributes it.
type SubmitRequest struct {
	Path       string
	MomentID   string
	AuthorID   string
	AuthorName string
	Deferred   bool
}

// Submit reads the photo at req.Path and runs it through the pipeline as
// this device.
func (a *MomentsApp) Submit(ctx context.Context, req SubmitRequest) (*moments.SubmitResult, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, a.op.Fail(fmt.Errorf("reading photo: %w", err))
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, a.op.Fail(fmt.Errorf("%w: %s is %s, not an image", moments.ErrInvalidSubmission, req.Path, mime.String()))
	}

	sync := moments.SyncImmediate
	if req.Deferred {
		sync = moments.SyncDeferred
	}

	task := &moments.UploadTask{
		File: moments.RawFile{
			Name:     filepath.Base(req.Path),
			MimeType: mime.String(),
			Data:     data,
		},
		MomentID: req.MomentID,
		Author:   moments.Author{ID: req.AuthorID, Name: req.AuthorName},
		Device:   a.device(),
		Sync:     sync,
	}

	result, err := a.service.Submit(ctx, task)
	return result, a.op.Fail(err)
}

// Sync drains due originals once. Unless ignoreCondition is set, it returns
// ErrNotReady when the configured sync condition does not hold.
func (a *MomentsApp) Sync(ctx context.Context, ignoreCondition bool) ([]*moments.DrainOutcome, error) {
	var cond moments.Condition
	if !ignoreCondition {
		cond = a.cond
		ready, err := cond.Ready(ctx)
		if err != nil {
			return nil, a.op.Fail(fmt.Errorf("checking sync condition: %w", err))
		}
		if !ready {
			return nil, ErrNotReady
		}
	}

	outcomes, err := a.syncer.Drain(ctx, cond)
	for _, o := range outcomes {
		if o.Err != nil {
			a.op.Fail(o.Err)
		}
	}
	return outcomes, a.op.Fail(err)
}

// Watch drains due originals every sync interval until ctx is done.
// onDrain receives the outcomes of every drain that processed something.
func (a *MomentsApp) Watch(ctx context.Context, onDrain func([]*moments.DrainOutcome)) error {
	w := moments.NewSyncWorker(a.syncer, a.cond, a.cfg.Sync.Interval.Duration, &slogAdapter{l: a.logger})
	if onDrain != nil {
		w.OnDrain(onDrain)
	}
	err := w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Pending lists queued originals: those still scheduled, or with exhausted
// set, those that gave up.
func (a *MomentsApp) Pending(ctx context.Context, exhausted bool) ([]*moments.PendingEntry, error) {
	if exhausted {
		return a.syncer.Exhausted(ctx)
	}
	return a.syncer.Pending(ctx)
}

// QueueSize returns the total size in bytes of the originals waiting in the queue.
func (a *MomentsApp) QueueSize(ctx context.Context) (int64, error) {
	return a.queue.Size(ctx)
}

// RetryOriginal resets the queued original of a record for the next sync.
func (a *MomentsApp) RetryOriginal(ctx context.Context, recordID string) error {
	return a.op.Fail(a.syncer.Retry(ctx, recordID))
}

// History returns the most recent submissions made from this device.
func (a *MomentsApp) History(ctx context.Context, limit int) ([]*moments.Submission, error) {
	return a.service.History(ctx, limit)
}

// Quota returns the shots this device has used and the configured maximum.
func (a *MomentsApp) Quota(ctx context.Context) (used, limit int, err error) {
	return a.service.Quota(ctx, a.device())
}

// Feed returns the newest entries of the live feed from the configured backend.
func (a *MomentsApp) Feed(ctx context.Context, limit int) ([]*moments.FeedEntry, error) {
	if rf, ok := a.feed.(*feed.RedisFeed); ok {
		return rf.List(ctx, int64(limit))
	}
	return a.db.ListFeed(ctx, limit)
}

func (a *MomentsApp) device() moments.DeviceIdentity {
	return moments.DeviceIdentity{ID: a.cfg.DeviceID, Name: a.cfg.DeviceName}
}

// Close finishes the operation and releases every resource.
func (a *MomentsApp) Close() error {
	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status)
	return a.release()
}

func (a *MomentsApp) release() error {
	var firstErr error

	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
		a.db = nil
	}

	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}

	return firstErr
}
