package moments

import (
	"context"
	"fmt"
	"time"
)

// QuotaCounter tracks how many contributions a device has published.
// It is a soft, device-local cap and not a security boundary.
type QuotaCounter interface {
	Shots(ctx context.Context, deviceID string) (int, error)
	IncrementShots(ctx context.Context, deviceID string) (int, error)
}

// Submission is one row of the device's submission history.
type Submission struct {
	ID         int64
	DeviceID   string
	RecordID   string
	MomentID   string
	FileName   string
	Sync       SyncPreference
	State      TaskState
	FailedStep Step
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SubmissionLog persists the outcome of each Submit call.
type SubmissionLog interface {
	LogSubmission(ctx context.Context, s *Submission) error
	ListSubmissions(ctx context.Context, limit int) ([]*Submission, error)
}

// History returns the most recent submissions, newest first.
func (s *UploadService) History(ctx context.Context, limit int) ([]*Submission, error) {
	if s.history == nil {
		return nil, nil
	}
	subs, err := s.history.ListSubmissions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	return subs, nil
}

// Quota returns the shots used and the configured maximum for a device.
func (s *UploadService) Quota(ctx context.Context, device DeviceIdentity) (used, limit int, err error) {
	used, err = s.quota.Shots(ctx, device.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("reading shot count: %w", err)
	}
	return used, s.opts.MaxShots, nil
}

func (s *UploadService) logSubmission(ctx context.Context, sub *Submission) {
	if s.history == nil {
		return
	}
	sub.FinishedAt = s.clock.Now()
	if err := s.history.LogSubmission(ctx, sub); err != nil {
		s.logger.Warn("failed to record submission", "record", sub.RecordID, "error", err)
	}
}
