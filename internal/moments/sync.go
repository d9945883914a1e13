package moments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a pending original is retried.
// After MaxAttempts failures the entry becomes exhausted and is only retried
// when an operator resets it.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when the configuration leaves the policy unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
}

// Delay returns how long to wait after the given number of failed attempts.
// The delay doubles from BaseDelay and is capped at MaxDelay.
func (p RetryPolicy) Delay(failures int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}

	var d time.Duration
	for i := 0; i < failures; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}

// DrainResult says what happened to one pending entry.
type DrainResult string

const (
	DrainSynced        DrainResult = "synced"
	DrainAlreadySynced DrainResult = "already-synced"
	DrainRetry         DrainResult = "retry"
	DrainExhausted     DrainResult = "exhausted"
	DrainSkipped       DrainResult = "skipped"
)

// DrainOutcome reports the processing of one pending entry.
type DrainOutcome struct {
	RecordID string
	Result   DrainResult
	AssetRef string
	Attempts int
	Err      error
}

// Syncer uploads deferred originals and reconciles them with their records.
// Entries are processed one at a time; the queue is single-writer.
type Syncer struct {
	queue    PendingQueue
	metadata MetadataRepository
	dest     OriginalDestination
	policy   RetryPolicy
	timeouts Timeouts
	logger   Logger
	clock    Clock
	mu       sync.Mutex
}

// NewSyncer creates a Syncer. A zero policy is replaced by DefaultRetryPolicy.
func NewSyncer(queue PendingQueue, metadata MetadataRepository, dest OriginalDestination, policy RetryPolicy, timeouts Timeouts, logger Logger, clock Clock) *Syncer {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Syncer{
		queue:    queue,
		metadata: metadata,
		dest:     dest,
		policy:   policy,
		timeouts: timeouts.withDefaults(),
		logger:   logger,
		clock:    clock,
	}
}

// Drain processes every due pending entry in enqueue order. The condition is
// checked before each entry and draining stops as soon as it no longer holds.
// A nil condition always holds. Per-entry failures are reported in the
// outcomes; the returned error is for failures of the drain itself.
func (s *Syncer) Drain(ctx context.Context, cond Condition) ([]*DrainOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.queue.Due(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("listing due originals: %w", err)
	}

	var outcomes []*DrainOutcome
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		if cond != nil {
			ready, err := cond.Ready(ctx)
			if err != nil {
				return outcomes, fmt.Errorf("checking sync condition: %w", err)
			}
			if !ready {
				s.logger.Info("sync condition no longer holds", "remaining", len(entries)-i)
				break
			}
		}
		outcomes = append(outcomes, s.process(ctx, e))
	}

	return outcomes, nil
}

// SyncOne processes the pending entry for one record right away, ignoring its
// backoff schedule. Exhausted or missing entries are skipped.
func (s *Syncer) SyncOne(ctx context.Context, recordID string) (*DrainOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.queue.Get(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("loading pending original: %w", err)
	}
	if e == nil || e.State == EntryExhausted {
		return &DrainOutcome{RecordID: recordID, Result: DrainSkipped}, nil
	}
	return s.process(ctx, e), nil
}

// Retry resets an exhausted entry so the next drain picks it up.
func (s *Syncer) Retry(ctx context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.queue.Get(ctx, recordID)
	if err != nil {
		return fmt.Errorf("loading pending original: %w", err)
	}
	if e == nil {
		return fmt.Errorf("no pending original for record %s", recordID)
	}

	if rec, err := s.loadRecord(ctx, recordID); err == nil && rec.OriginalSynced() {
		if err := s.queue.Remove(ctx, recordID); err != nil {
			return fmt.Errorf("removing synced original: %w", err)
		}
		s.logger.Info("original already synced", "record", recordID, "asset", rec.OriginalAssetRef)
		return nil
	}

	e.State = EntryPending
	e.Attempts = 0
	e.LastError = ""
	e.NextAttemptAt = s.clock.Now()
	if err := s.queue.Update(ctx, e); err != nil {
		return fmt.Errorf("resetting pending original: %w", err)
	}
	s.logger.Info("pending original reset", "record", recordID)
	return nil
}

// Pending lists entries still scheduled for upload.
func (s *Syncer) Pending(ctx context.Context) ([]*PendingEntry, error) {
	return s.queue.List(ctx, EntryPending)
}

// Exhausted lists entries that gave up and need an operator. Entries whose
// record has since been reconciled are removed instead of listed.
func (s *Syncer) Exhausted(ctx context.Context) ([]*PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.queue.List(ctx, EntryExhausted)
	if err != nil {
		return nil, err
	}

	var out []*PendingEntry
	for _, e := range entries {
		rec, err := s.loadRecord(ctx, e.RecordID)
		if err != nil || !rec.OriginalSynced() {
			out = append(out, e)
			continue
		}
		if err := s.queue.Remove(ctx, e.RecordID); err != nil {
			return nil, fmt.Errorf("removing synced original: %w", err)
		}
		s.logger.Info("original already synced", "record", e.RecordID, "asset", rec.OriginalAssetRef)
	}
	return out, nil
}

// process runs the reconciliation protocol for one entry:
// skip the upload when the record already has an original, otherwise upload,
// update the record, and remove the entry.
func (s *Syncer) process(ctx context.Context, e *PendingEntry) *DrainOutcome {
	s.logger.Info("syncing original", "record", e.RecordID, "state", StateSyncingOriginal, "attempt", e.Attempts+1)

	rec, err := s.loadRecord(ctx, e.RecordID)
	if err != nil {
		return s.fail(ctx, e, newStepError(StepReconcile, ErrRegistration, err))
	}

	if rec.OriginalSynced() {
		if err := s.queue.Remove(ctx, e.RecordID); err != nil {
			return s.fail(ctx, e, newStepError(StepReconcile, ErrQueuePersist, err))
		}
		s.logger.Info("original already synced", "record", e.RecordID, "asset", rec.OriginalAssetRef)
		return &DrainOutcome{RecordID: e.RecordID, Result: DrainAlreadySynced, AssetRef: rec.OriginalAssetRef, Attempts: e.Attempts}
	}

	ref, err := s.upload(ctx, e, func() (io.ReadCloser, error) { return s.queue.Open(ctx, e.RecordID) })
	if err != nil {
		return s.fail(ctx, e, newStepError(StepUploadOriginal, ErrOriginalUpload, err))
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeouts.Register)
	err = s.metadata.Update(rctx, e.RecordID, RecordPatch{OriginalAssetRef: &ref})
	cancel()
	if err != nil {
		return s.fail(ctx, e, newStepError(StepReconcile, ErrRegistration, err))
	}

	// The record now points at the original; a leftover entry is removed by
	// the next drain without uploading again.
	if err := s.queue.Remove(ctx, e.RecordID); err != nil {
		s.logger.Warn("failed to remove synced original from queue", "record", e.RecordID, "error", err)
	}

	s.logger.Info("original synced", "record", e.RecordID, "state", StateOriginalSynced, "asset", ref)
	return &DrainOutcome{RecordID: e.RecordID, Result: DrainSynced, AssetRef: ref, Attempts: e.Attempts + 1}
}

func (s *Syncer) loadRecord(ctx context.Context, id string) (*ImageRecord, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeouts.Register)
	defer cancel()

	rec, err := s.metadata.Get(rctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s not found", id)
	}
	return rec, nil
}

// UploadNow uploads an original that never made it into the queue and
// reconciles its record. Nothing is retried or recorded on failure.
func (s *Syncer) UploadNow(ctx context.Context, e *PendingEntry, content []byte) (string, error) {
	ref, err := s.upload(ctx, e, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(content)), nil
	})
	if err != nil {
		return "", newStepError(StepUploadOriginal, ErrOriginalUpload, err)
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeouts.Register)
	err = s.metadata.Update(rctx, e.RecordID, RecordPatch{OriginalAssetRef: &ref})
	cancel()
	if err != nil {
		return "", newStepError(StepReconcile, ErrRegistration, err)
	}
	s.logger.Info("original uploaded without queueing", "record", e.RecordID, "asset", ref)
	return ref, nil
}

func (s *Syncer) upload(ctx context.Context, e *PendingEntry, open func() (io.ReadCloser, error)) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeouts.Upload)
	dest, err := s.dest.Request(rctx, DestinationRequest{
		FileName: e.FileName,
		FileType: e.MimeType,
		FolderID: e.FolderID,
	})
	cancel()
	if err != nil {
		return "", fmt.Errorf("requesting upload destination: %w", err)
	}

	content, err := open()
	if err != nil {
		return "", fmt.Errorf("opening original: %w", err)
	}
	defer content.Close()

	uctx, cancel := context.WithTimeout(ctx, s.timeouts.Original)
	defer cancel()
	ref, err := s.dest.Upload(uctx, dest, content, e.Size, e.MimeType)
	if err != nil {
		return "", err
	}
	if ref == "" {
		return "", errors.New("upload returned no asset reference")
	}
	return ref, nil
}

// fail records a failed attempt, scheduling a retry or exhausting the entry.
func (s *Syncer) fail(ctx context.Context, e *PendingEntry, cause *StepError) *DrainOutcome {
	e.Attempts++
	e.LastError = cause.Error()
	out := &DrainOutcome{RecordID: e.RecordID, Attempts: e.Attempts}

	if e.Attempts >= s.policy.MaxAttempts {
		e.State = EntryExhausted
		out.Result = DrainExhausted
		out.Err = &StepError{Step: cause.Step, Kind: ErrSyncRetryExhausted, Message: ErrSyncRetryExhausted.Error(), Err: cause}
		s.logger.Error("original sync exhausted", "record", e.RecordID, "state", StateSyncExhausted, "attempts", e.Attempts, "error", cause)
	} else {
		e.NextAttemptAt = s.clock.Now().Add(s.policy.Delay(e.Attempts))
		out.Result = DrainRetry
		out.Err = cause
		s.logger.Warn("original sync failed", "record", e.RecordID, "attempts", e.Attempts, "next_attempt", e.NextAttemptAt, "error", cause)
	}

	// Persist the attempt even when ctx has expired.
	if err := s.queue.Update(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error("failed to persist sync attempt", "record", e.RecordID, "error", err)
	}
	return out
}
