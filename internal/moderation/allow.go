package moderation

import (
	"context"

	"moments/internal/moments"
)

// AllowGate accepts every asset. It is meant for private events that run
// without a classifier.
type AllowGate struct{}

func (AllowGate) Classify(ctx context.Context, r moments.ModerationRequest) (moments.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return moments.Verdict{}, err
	}
	return moments.Accepted(""), nil
}

var _ moments.ModerationGate = AllowGate{}
