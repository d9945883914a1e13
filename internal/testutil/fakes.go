package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"moments/internal/destination"
	"moments/internal/moments"
	"moments/internal/objectstore"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// FailingStore wraps a MemoryStore. While Fail is set, Put returns ErrInjected.
type FailingStore struct {
	*objectstore.MemoryStore
	mu   sync.Mutex
	fail bool
}

func NewFailingStore() *FailingStore {
	return &FailingStore{MemoryStore: objectstore.NewMemoryStore("")}
}

func (s *FailingStore) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *FailingStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return "", ErrInjected
	}
	return s.MemoryStore.Put(ctx, path, r, size, contentType)
}

// FlakyDestination wraps a MemoryDestination and fails the next N uploads.
type FlakyDestination struct {
	*destination.MemoryDestination
	mu          sync.Mutex
	failUploads int
	attempts    int
}

func NewFlakyDestination() *FlakyDestination {
	return &FlakyDestination{MemoryDestination: destination.NewMemoryDestination()}
}

// FailNext makes the next n uploads return ErrInjected.
func (d *FlakyDestination) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failUploads = n
}

// Attempts returns how many uploads were attempted, including failures.
func (d *FlakyDestination) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *FlakyDestination) Upload(ctx context.Context, dest *moments.Destination, r io.Reader, size int64, contentType string) (string, error) {
	d.mu.Lock()
	d.attempts++
	if d.failUploads > 0 {
		d.failUploads--
		d.mu.Unlock()
		return "", ErrInjected
	}
	d.mu.Unlock()
	return d.MemoryDestination.Upload(ctx, dest, r, size, contentType)
}

// ScriptedGate returns queued verdicts in order, then accepts everything.
// It records every request it receives.
type ScriptedGate struct {
	mu       sync.Mutex
	verdicts []moments.Verdict
	err      error
	requests []moments.ModerationRequest
}

func NewScriptedGate(verdicts ...moments.Verdict) *ScriptedGate {
	return &ScriptedGate{verdicts: verdicts}
}

// SetError makes every call fail with err until cleared with nil.
func (g *ScriptedGate) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *ScriptedGate) Classify(ctx context.Context, req moments.ModerationRequest) (moments.Verdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return moments.Verdict{}, g.err
	}
	if len(g.verdicts) == 0 {
		return moments.Accepted(""), nil
	}
	v := g.verdicts[0]
	g.verdicts = g.verdicts[1:]
	return v, nil
}

// Requests returns the requests received so far.
func (g *ScriptedGate) Requests() []moments.ModerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]moments.ModerationRequest(nil), g.requests...)
}

// FailingFeed wraps a FeedWriter and fails while Fail is set.
type FailingFeed struct {
	moments.FeedWriter
	mu   sync.Mutex
	fail bool
}

func (f *FailingFeed) SetFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *FailingFeed) Publish(ctx context.Context, e *moments.FeedEntry) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.FeedWriter.Publish(ctx, e)
}

// FailingMetadata wraps a MetadataRepository and fails selected operations.
type FailingMetadata struct {
	moments.MetadataRepository
	mu         sync.Mutex
	failCreate bool
	failUpdate int
}

func (m *FailingMetadata) SetFailCreate(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = fail
}

// FailNextUpdates makes the next n updates return ErrInjected.
func (m *FailingMetadata) FailNextUpdates(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdate = n
}

func (m *FailingMetadata) Create(ctx context.Context, f moments.RecordFields) (string, error) {
	m.mu.Lock()
	fail := m.failCreate
	m.mu.Unlock()
	if fail {
		return "", ErrInjected
	}
	return m.MetadataRepository.Create(ctx, f)
}

func (m *FailingMetadata) Update(ctx context.Context, id string, patch moments.RecordPatch) error {
	m.mu.Lock()
	if m.failUpdate > 0 {
		m.failUpdate--
		m.mu.Unlock()
		return ErrInjected
	}
	m.mu.Unlock()
	return m.MetadataRepository.Update(ctx, id, patch)
}

// CountdownCondition is ready for the first N checks and then never again.
type CountdownCondition struct {
	mu        sync.Mutex
	remaining int
}

func NewCountdownCondition(n int) *CountdownCondition {
	return &CountdownCondition{remaining: n}
}

func (c *CountdownCondition) Ready(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining <= 0 {
		return false, nil
	}
	c.remaining--
	return true, nil
}

// BlockingCompressor blocks in Compress until Release is called, then
// delegates to Next.
type BlockingCompressor struct {
	Next    moments.Compressor
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func NewBlockingCompressor(next moments.Compressor) *BlockingCompressor {
	return &BlockingCompressor{Next: next, started: make(chan struct{}), release: make(chan struct{})}
}

// Started is closed once Compress has been entered.
func (c *BlockingCompressor) Started() <-chan struct{} { return c.started }

func (c *BlockingCompressor) Release() { close(c.release) }

func (c *BlockingCompressor) Compress(ctx context.Context, raw []byte) (*moments.Artifact, error) {
	c.once.Do(func() { close(c.started) })
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.Next.Compress(ctx, raw)
}
