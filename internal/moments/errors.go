package moments

import (
	"errors"
	"fmt"
)

// Step names a stage of the contribution pipeline. It is reported with every
// failure so a user-facing message can be traced back to where it happened.
type Step string

const (
	StepValidate        Step = "validate"
	StepQuota           Step = "quota"
	StepCompress        Step = "compress"
	StepUploadOptimized Step = "upload-optimized"
	StepRegister        Step = "register"
	StepEnqueue         Step = "enqueue"
	StepUploadOriginal  Step = "upload-original"
	StepReconcile       Step = "reconcile"
	StepModerate        Step = "moderate"
	StepPublish         Step = "publish"
)

// Error kinds. Match with errors.Is against any error returned by the pipeline.
var (
	ErrInvalidSubmission     = errors.New("submission is incomplete")
	ErrSubmissionInProgress  = errors.New("another submission is still in progress")
	ErrQuotaExceeded         = errors.New("shot quota reached")
	ErrDeviceStorage         = errors.New("device storage is unavailable")
	ErrCompression           = errors.New("photo could not be processed")
	ErrTransport             = errors.New("photo upload failed")
	ErrRegistration          = errors.New("photo could not be registered")
	ErrQueuePersist          = errors.New("original could not be saved for later upload")
	ErrOriginalUpload        = errors.New("original upload failed")
	ErrModerationRejected    = errors.New("photo was not accepted")
	ErrModerationUnavailable = errors.New("photo review is unavailable")
	ErrPublish               = errors.New("photo could not be published")
	ErrSyncRetryExhausted    = errors.New("original upload gave up after repeated failures")
)

// StepError is the error type returned by UploadService and Syncer.
// Kind is one of the Err* sentinels above; Message is the short text shown to
// the guest (for rejections, the moderation gate's message verbatim).
type StepError struct {
	Step    Step
	Kind    error
	Message string
	Err     error
}

func newStepError(step Step, kind error, err error) *StepError {
	return &StepError{Step: step, Kind: kind, Message: kind.Error(), Err: err}
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Step, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns the text meant for the guest, with the step for diagnosis.
func (e *StepError) UserMessage() string {
	return fmt.Sprintf("%s (step: %s)", e.Message, e.Step)
}

// AsStepError extracts a *StepError from err, if there is one.
func AsStepError(err error) (*StepError, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
