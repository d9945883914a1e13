package moments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Timeouts bounds each pipeline step. Zero fields take the defaults.
type Timeouts struct {
	Compress time.Duration
	Upload   time.Duration
	Register time.Duration
	Queue    time.Duration
	Original time.Duration
	Moderate time.Duration
	Publish  time.Duration
}

// DefaultTimeouts returns the per-step deadlines used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Compress: 30 * time.Second,
		Upload:   60 * time.Second,
		Register: 15 * time.Second,
		Queue:    15 * time.Second,
		Original: 5 * time.Minute,
		Moderate: 30 * time.Second,
		Publish:  15 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	for _, f := range []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&t.Compress, d.Compress},
		{&t.Upload, d.Upload},
		{&t.Register, d.Register},
		{&t.Queue, d.Queue},
		{&t.Original, d.Original},
		{&t.Moderate, d.Moderate},
		{&t.Publish, d.Publish},
	} {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	return t
}

// Options tunes an UploadService.
type Options struct {
	// MaxShots caps published contributions per device. Zero disables the cap.
	MaxShots int
	// PurgeRejected deletes the record and optimized asset of rejected photos.
	PurgeRejected bool
	Timeouts      Timeouts
}

// Components are the collaborators of an UploadService.
// History may be nil; every other field is required.
type Components struct {
	Compressor Compressor
	Store      ObjectStore
	Metadata   MetadataRepository
	Queue      PendingQueue
	Syncer     *Syncer
	Gate       ModerationGate
	Feed       FeedWriter
	Quota      QuotaCounter
	History    SubmissionLog
	Logger     Logger
	Clock      Clock
	IDs        IDGenerator
}

// SubmitResult describes a submission that got past registration.
type SubmitResult struct {
	Record  *ImageRecord
	State   TaskState
	Verdict Verdict
	// OriginalSynced is true when the original was uploaded within Submit.
	OriginalSynced bool
	// OriginalErr is set when the immediate original upload failed. The
	// original stays queued for background sync and the submission continues.
	OriginalErr error
	ShotsUsed   int
}

// UploadService coordinates a guest submission from raw photo to published
// feed entry. Only one submission runs at a time.
type UploadService struct {
	compressor Compressor
	store      ObjectStore
	metadata   MetadataRepository
	queue      PendingQueue
	syncer     *Syncer
	gate       ModerationGate
	feed       FeedWriter
	quota      QuotaCounter
	history    SubmissionLog
	opts       Options
	logger     Logger
	clock      Clock
	ids        IDGenerator
	active     sync.Mutex
}

// NewUploadService creates an UploadService from its components.
func NewUploadService(c Components, opts Options) *UploadService {
	opts.Timeouts = opts.Timeouts.withDefaults()
	if c.Logger == nil {
		c.Logger = NewNopLogger()
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	if c.IDs == nil {
		c.IDs = UUIDGenerator{}
	}
	return &UploadService{
		compressor: c.Compressor,
		store:      c.Store,
		metadata:   c.Metadata,
		queue:      c.Queue,
		syncer:     c.Syncer,
		gate:       c.Gate,
		feed:       c.Feed,
		quota:      c.Quota,
		history:    c.History,
		opts:       opts,
		logger:     c.Logger,
		clock:      c.Clock,
		ids:        c.IDs,
	}
}

// Syncer returns the syncer that drains originals queued by this service.
func (s *UploadService) Syncer() *Syncer { return s.syncer }

// taskRun tracks one UploadTask through the state machine.
type taskRun struct {
	svc   *UploadService
	task  *UploadTask
	state TaskState
	sub   *Submission
}

func (r *taskRun) to(state TaskState) {
	r.state = state
	r.svc.logger.Info("task state", "record", r.sub.RecordID, "moment", r.task.MomentID, "state", state)
}

// abort moves the task to Failed and records the failure.
func (r *taskRun) abort(ctx context.Context, step Step, kind error, err error) *StepError {
	se := newStepError(step, kind, err)
	r.state = StateFailed
	r.svc.logger.Error("submission failed", "record", r.sub.RecordID, "step", step, "error", err)
	r.finish(ctx, se)
	return se
}

func (r *taskRun) finish(ctx context.Context, se *StepError) {
	r.sub.State = r.state
	if se != nil {
		r.sub.FailedStep = se.Step
		r.sub.Message = se.Message
	}
	r.svc.logSubmission(ctx, r.sub)
}

// Submit runs a submission through compress, optimized upload, registration,
// original upload or queueing, moderation, and publication.
//
// Errors are *StepError values. Before registration nothing is persisted and
// the result is nil. From registration on, the record exists and the result is
// returned together with any error. A failed immediate original upload is not
// an error: it is reported in SubmitResult.OriginalErr and left queued. An
// immediate task whose original the queue refuses is uploaded directly
// instead; only deferred tasks fail with ErrQueuePersist.
//
// Cancelling ctx before compression finishes discards the submission. Once the
// optimized upload has started the pipeline runs to completion, bounded only by
// the per-step timeouts.
func (s *UploadService) Submit(ctx context.Context, task *UploadTask) (*SubmitResult, error) {
	if task.Sync == "" {
		task.Sync = SyncImmediate
	}
	if err := task.Validate(); err != nil {
		return nil, newStepError(StepValidate, ErrInvalidSubmission, err)
	}

	if !s.active.TryLock() {
		return nil, newStepError(StepValidate, ErrSubmissionInProgress, nil)
	}
	defer s.active.Unlock()

	t := s.opts.Timeouts
	run := &taskRun{
		svc:   s,
		task:  task,
		state: StateCreated,
		sub: &Submission{
			DeviceID:  task.Device.ID,
			MomentID:  task.MomentID,
			FileName:  task.File.Name,
			Sync:      task.Sync,
			StartedAt: s.clock.Now(),
		},
	}
	run.to(StateCreated)

	used, err := s.quota.Shots(ctx, task.Device.ID)
	if err != nil {
		return nil, run.abort(ctx, StepQuota, ErrDeviceStorage, err)
	}
	if s.opts.MaxShots > 0 && used >= s.opts.MaxShots {
		return nil, run.abort(ctx, StepQuota, ErrQuotaExceeded, fmt.Errorf("%d of %d shots used", used, s.opts.MaxShots))
	}

	// 1. Compress.
	run.to(StateCompressing)
	cctx, cancel := context.WithTimeout(ctx, t.Compress)
	artifact, err := s.compressor.Compress(cctx, task.File.Data)
	cancel()
	if err != nil {
		return nil, run.abort(ctx, StepCompress, ErrCompression, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, run.abort(ctx, StepCompress, ErrCompression, err)
	}

	// No cancellation from here on.
	ctx = context.WithoutCancel(ctx)

	// 2. Upload optimized.
	run.to(StateUploadingOptimized)
	objectPath := OptimizedPath(task.MomentID, s.ids.New())
	uctx, cancel := context.WithTimeout(ctx, t.Upload)
	url, err := s.store.Put(uctx, objectPath, bytes.NewReader(artifact.Data), int64(len(artifact.Data)), artifact.MimeType)
	cancel()
	if err != nil {
		return nil, run.abort(ctx, StepUploadOptimized, ErrTransport, err)
	}

	// 3. Register. The contribution is durable once this succeeds.
	run.to(StateRegistering)
	now := s.clock.Now()
	fields := RecordFields{
		OptimizedURL:     url,
		OptimizedPath:    objectPath,
		OriginalAssetRef: PlaceholderAssetRef,
		CategoryID:       task.MomentID,
		AuthorID:         task.Author.ID,
		AuthorName:       task.Author.Name,
		Timestamp:        now,
	}
	rctx, cancel := context.WithTimeout(ctx, t.Register)
	id, err := s.metadata.Create(rctx, fields)
	cancel()
	if err != nil {
		s.logger.Warn("optimized asset left without record", "path", objectPath)
		return nil, run.abort(ctx, StepRegister, ErrRegistration, err)
	}
	run.sub.RecordID = id

	record := &ImageRecord{
		ID:               id,
		OptimizedURL:     url,
		OptimizedPath:    objectPath,
		OriginalAssetRef: PlaceholderAssetRef,
		CategoryID:       task.MomentID,
		AuthorID:         task.Author.ID,
		AuthorName:       task.Author.Name,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	result := &SubmitResult{Record: record, State: StateRegistering}

	// 4. Hand the original to the queue, then try it right away if asked to.
	entry := &PendingEntry{
		RecordID:      id,
		FileName:      task.File.Name,
		FolderID:      task.MomentID,
		MimeType:      task.File.MimeType,
		AuthorID:      task.Author.ID,
		DeviceID:      task.Device.ID,
		Size:          int64(len(task.File.Data)),
		State:         EntryPending,
		NextAttemptAt: now,
		EnqueuedAt:    now,
	}
	qctx, cancel := context.WithTimeout(ctx, t.Queue)
	queueErr := s.queue.Enqueue(qctx, entry, task.File.Data)
	cancel()

	switch {
	case queueErr != nil && task.Sync == SyncDeferred:
		result.State = StateFailed
		return result, run.abort(ctx, StepEnqueue, ErrQueuePersist, queueErr)
	case queueErr != nil:
		s.logger.Warn("original could not be queued, uploading directly", "record", id, "error", queueErr)
		run.to(StateUploadingOriginal)
		s.uploadDirectly(ctx, result, entry, task.File.Data, queueErr)
	case task.Sync == SyncDeferred:
		run.to(StateDeferredQueued)
	default:
		run.to(StateUploadingOriginal)
		s.syncImmediately(ctx, result)
	}

	// 5. Moderate.
	run.to(StateModerating)
	mctx, cancel := context.WithTimeout(ctx, t.Moderate)
	verdict, err := s.gate.Classify(mctx, ModerationRequest{
		ImageURL:    url,
		ContentType: ContentTypePhoto,
		AuthorName:  task.Author.Name,
		UserID:      task.Author.ID,
	})
	cancel()
	if err != nil {
		result.State = StateFailed
		return result, run.abort(ctx, StepModerate, ErrModerationUnavailable, err)
	}
	result.Verdict = verdict

	if !verdict.IsAccepted() {
		run.to(StateRejected)
		result.State = StateRejected
		if s.opts.PurgeRejected {
			s.purge(ctx, record)
		}
		rejection := &StepError{Step: StepModerate, Kind: ErrModerationRejected, Message: verdict.Message}
		if rejection.Message == "" {
			rejection.Message = ErrModerationRejected.Error()
		}
		run.finish(ctx, rejection)
		return result, rejection
	}

	// 6. Publish.
	pctx, cancel := context.WithTimeout(ctx, t.Publish)
	err = s.feed.Publish(pctx, NewFeedEntry(record))
	cancel()
	if err != nil {
		result.State = StateFailed
		return result, run.abort(ctx, StepPublish, ErrPublish, err)
	}
	run.to(StatePublished)
	result.State = StatePublished

	// 7. Count the shot.
	shots, err := s.quota.IncrementShots(ctx, task.Device.ID)
	if err != nil {
		s.logger.Warn("failed to update shot count", "device", task.Device.ID, "error", err)
		shots = used + 1
	}
	result.ShotsUsed = shots

	run.finish(ctx, nil)
	return result, nil
}

// syncImmediately uploads the just-queued original in-call. Failure leaves the
// entry queued with its attempt recorded.
func (s *UploadService) syncImmediately(ctx context.Context, result *SubmitResult) {
	id := result.Record.ID
	out, err := s.syncer.SyncOne(ctx, id)
	switch {
	case err != nil:
		result.OriginalErr = newStepError(StepUploadOriginal, ErrOriginalUpload, err)
	case out.Result == DrainSynced || out.Result == DrainAlreadySynced:
		result.OriginalSynced = true
		result.Record.OriginalAssetRef = out.AssetRef
		result.Record.UpdatedAt = s.clock.Now()
	default:
		result.OriginalErr = &StepError{Step: StepUploadOriginal, Kind: ErrOriginalUpload, Message: ErrOriginalUpload.Error(), Err: out.Err}
	}
	if result.OriginalErr != nil {
		s.logger.Warn("original left queued for background sync", "record", id, "error", result.OriginalErr)
	}
}

// uploadDirectly is the immediate path when the queue refused the original.
// A failure here loses the original, which is reported in OriginalErr along
// with the queue error.
func (s *UploadService) uploadDirectly(ctx context.Context, result *SubmitResult, entry *PendingEntry, data []byte, queueErr error) {
	ref, err := s.syncer.UploadNow(ctx, entry, data)
	if err != nil {
		result.OriginalErr = &StepError{
			Step:    StepUploadOriginal,
			Kind:    ErrOriginalUpload,
			Message: ErrOriginalUpload.Error(),
			Err:     errors.Join(queueErr, err),
		}
		s.logger.Error("original not queued and not uploaded", "record", entry.RecordID, "error", result.OriginalErr)
		return
	}
	result.OriginalSynced = true
	result.Record.OriginalAssetRef = ref
	result.Record.UpdatedAt = s.clock.Now()
}

// purge removes every trace of a rejected contribution. Failures are logged;
// the rejection itself is still reported.
func (s *UploadService) purge(ctx context.Context, record *ImageRecord) {
	if err := s.queue.Remove(ctx, record.ID); err != nil {
		s.logger.Warn("purge: failed to drop queued original", "record", record.ID, "error", err)
	}
	if err := s.store.Delete(ctx, record.OptimizedPath); err != nil {
		s.logger.Warn("purge: failed to delete optimized asset", "record", record.ID, "path", record.OptimizedPath, "error", err)
	}
	if err := s.metadata.Delete(ctx, record.ID); err != nil {
		s.logger.Warn("purge: failed to delete record", "record", record.ID, "error", err)
		return
	}
	s.logger.Info("rejected contribution purged", "record", record.ID)
}
