package moments

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DeviceIdentity identifies the device a submission is made from.
// The shot quota and the pending-original queue are scoped to it.
type DeviceIdentity struct {
	ID   string `validate:"required"`
	Name string
}

// Author is the guest credited with a contribution.
type Author struct {
	ID   string `validate:"required"`
	Name string `validate:"required"`
}

// SyncPreference selects when the full-resolution original is uploaded.
type SyncPreference string

const (
	SyncImmediate SyncPreference = "immediate"
	SyncDeferred  SyncPreference = "deferred"
)

// ParseSyncPreference converts a user-supplied string to a SyncPreference.
func ParseSyncPreference(s string) (SyncPreference, error) {
	switch SyncPreference(s) {
	case SyncImmediate, SyncDeferred:
		return SyncPreference(s), nil
	case "":
		return SyncImmediate, nil
	default:
		return "", fmt.Errorf("unknown sync preference: %q", s)
	}
}

// RawFile is a photo as captured or selected on the device.
type RawFile struct {
	Name     string `validate:"required"`
	MimeType string `validate:"required"`
	Data     []byte `validate:"min=1"`
}

// UploadTask is one guest-initiated submission. It lives only for the
// duration of UploadService.Submit.
type UploadTask struct {
	File     RawFile
	MomentID string `validate:"required"`
	Author   Author
	Device   DeviceIdentity
	Sync     SyncPreference `validate:"oneof=immediate deferred"`
}

var taskValidator = validator.New()

// Validate checks that every field a submission needs is present.
func (t *UploadTask) Validate() error {
	if err := taskValidator.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	return nil
}

// TaskState is a node of the submission state machine.
type TaskState string

const (
	StateCreated            TaskState = "created"
	StateCompressing        TaskState = "compressing"
	StateUploadingOptimized TaskState = "uploading-optimized"
	StateRegistering        TaskState = "registering"
	StateDeferredQueued     TaskState = "deferred-queued"
	StateUploadingOriginal  TaskState = "uploading-original"
	StateModerating         TaskState = "moderating"
	StatePublished          TaskState = "published"
	StateRejected           TaskState = "rejected"
	StateFailed             TaskState = "failed"

	// States of the asynchronous original-sync leg.
	StateSyncingOriginal TaskState = "syncing-original"
	StateOriginalSynced  TaskState = "original-synced"
	StateSyncExhausted   TaskState = "sync-exhausted"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// MomentSlug turns a moment id into a path segment safe for every storage backend.
func MomentSlug(momentID string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(momentID), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "uncategorized"
	}
	return s
}

// OptimizedPath returns the storage path of an optimized artifact:
// <moment-slug>/<generated-name>.jpg
func OptimizedPath(momentID, generatedName string) string {
	return path.Join(MomentSlug(momentID), generatedName+".jpg")
}
