package moments

import "context"

// VerdictOutcome tags a moderation Verdict.
type VerdictOutcome string

const (
	VerdictAccepted VerdictOutcome = "accepted"
	VerdictRejected VerdictOutcome = "rejected"
)

// Verdict is the moderation gate's decision on one optimized asset.
type Verdict struct {
	Outcome VerdictOutcome
	Message string
}

func Accepted(message string) Verdict { return Verdict{Outcome: VerdictAccepted, Message: message} }
func Rejected(message string) Verdict { return Verdict{Outcome: VerdictRejected, Message: message} }

func (v Verdict) IsAccepted() bool { return v.Outcome == VerdictAccepted }

// ModerationRequest is sent to the gate for every registered contribution.
type ModerationRequest struct {
	ImageURL    string `json:"imageUrl"`
	ContentType string `json:"contentType"`
	AuthorName  string `json:"authorName"`
	UserID      string `json:"userId"`
}

// ContentTypePhoto is the only content type the pipeline submits.
const ContentTypePhoto = "photo"

// ModerationGate classifies an asset. An error means no verdict was reached;
// callers must not publish in that case. Implementations do not retry.
type ModerationGate interface {
	Classify(ctx context.Context, req ModerationRequest) (Verdict, error)
}
