package moments

import (
	"context"
	"time"
)

// SyncWorker drains the pending queue in the background whenever its
// condition holds.
type SyncWorker struct {
	syncer   *Syncer
	cond     Condition
	interval time.Duration
	logger   Logger

	// onDrain, when set, receives the outcomes of every non-empty drain.
	onDrain func([]*DrainOutcome)
}

// NewSyncWorker creates a worker that checks cond every interval.
func NewSyncWorker(syncer *Syncer, cond Condition, interval time.Duration, logger Logger) *SyncWorker {
	if cond == nil {
		cond = Always{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &SyncWorker{syncer: syncer, cond: cond, interval: interval, logger: logger}
}

// OnDrain registers a callback for drain outcomes.
func (w *SyncWorker) OnDrain(fn func([]*DrainOutcome)) { w.onDrain = fn }

// Run drains immediately and then on every tick until ctx is done.
// It returns ctx.Err().
func (w *SyncWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *SyncWorker) tick(ctx context.Context) {
	ready, err := w.cond.Ready(ctx)
	if err != nil {
		w.logger.Warn("sync condition check failed", "error", err)
		return
	}
	if !ready {
		w.logger.Debug("sync condition not met")
		return
	}

	outcomes, err := w.syncer.Drain(ctx, w.cond)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("drain failed", "error", err)
	}
	if len(outcomes) > 0 && w.onDrain != nil {
		w.onDrain(outcomes)
	}
}
