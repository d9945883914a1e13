package moments_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"moments/internal/compress"
	"moments/internal/config"
	"moments/internal/moments"
	"moments/internal/testutil"
)

func TestUploadService_Submit_Immediate(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t)
	task := testutil.Task(t, "First Dance", moments.SyncImmediate)

	got, err := p.Service.Submit(ctx, task)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if got.State != moments.StatePublished {
		t.Errorf("State = %q, want %q", got.State, moments.StatePublished)
	}
	if !got.OriginalSynced {
		t.Errorf("OriginalSynced = false, OriginalErr = %v", got.OriginalErr)
	}
	if got.ShotsUsed != 1 {
		t.Errorf("ShotsUsed = %d, want 1", got.ShotsUsed)
	}
	if !strings.HasPrefix(got.Record.OptimizedPath, "first-dance/") {
		t.Errorf("OptimizedPath = %q, want first-dance/ prefix", got.Record.OptimizedPath)
	}

	rec, err := p.DB.Get(ctx, got.Record.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.OriginalAssetRef != "original-1" {
		t.Errorf("OriginalAssetRef = %q, want %q", rec.OriginalAssetRef, "original-1")
	}

	data, contentType, ok := p.Dest.Get("original-1")
	if !ok {
		t.Fatal("original was not uploaded")
	}
	if !bytes.Equal(data, task.File.Data) {
		t.Error("uploaded original does not match raw file")
	}
	if contentType != "image/jpeg" {
		t.Errorf("original content type = %q, want image/jpeg", contentType)
	}

	if n, _ := p.Queue.Count(ctx); n != 0 {
		t.Errorf("queue Count() = %d, want 0", n)
	}

	feed, err := p.DB.ListFeed(ctx, 10)
	if err != nil {
		t.Fatalf("ListFeed() error = %v", err)
	}
	if len(feed) != 1 {
		t.Fatalf("len(feed) = %d, want 1", len(feed))
	}
	if feed[0].RecordID != got.Record.ID || feed[0].URL != got.Record.OptimizedURL {
		t.Errorf("feed entry = %+v, want record %s at %s", feed[0], got.Record.ID, got.Record.OptimizedURL)
	}
	if feed[0].Author != "Ana" || !feed[0].Approved {
		t.Errorf("feed entry author/approved = %q/%v", feed[0].Author, feed[0].Approved)
	}

	reqs := p.Gate.Requests()
	if len(reqs) != 1 {
		t.Fatalf("moderation requests = %d, want 1", len(reqs))
	}
	want := moments.ModerationRequest{
		ImageURL:    got.Record.OptimizedURL,
		ContentType: moments.ContentTypePhoto,
		AuthorName:  "Ana",
		UserID:      "guest-1",
	}
	if reqs[0] != want {
		t.Errorf("moderation request = %+v, want %+v", reqs[0], want)
	}
}

func TestUploadService_Submit_Deferred(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t)

	got, err := p.Service.Submit(ctx, testutil.Task(t, "ceremony", moments.SyncDeferred))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got.State != moments.StatePublished {
		t.Errorf("State = %q, want %q", got.State, moments.StatePublished)
	}
	if got.OriginalSynced {
		t.Error("OriginalSynced = true for deferred submission")
	}
	if p.Dest.Attempts() != 0 {
		t.Errorf("destination attempts = %d, want 0", p.Dest.Attempts())
	}

	rec, err := p.DB.Get(ctx, got.Record.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.OriginalAssetRef != moments.PlaceholderAssetRef {
		t.Errorf("OriginalAssetRef = %q, want placeholder", rec.OriginalAssetRef)
	}

	entry, err := p.Queue.Get(ctx, got.Record.ID)
	if err != nil {
		t.Fatalf("queue Get() error = %v", err)
	}
	if entry == nil {
		t.Fatal("original was not queued")
	}
	if entry.FolderID != "ceremony" || entry.FileName != "IMG_0001.jpg" || entry.DeviceID != "device-1" {
		t.Errorf("queued entry = %+v", entry)
	}

	outcomes, err := p.Syncer.Drain(ctx, nil)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Result != moments.DrainSynced {
		t.Fatalf("Drain() outcomes = %+v, want one synced", outcomes)
	}

	rec, _ = p.DB.Get(ctx, got.Record.ID)
	if rec.OriginalAssetRef != outcomes[0].AssetRef {
		t.Errorf("OriginalAssetRef = %q, want %q", rec.OriginalAssetRef, outcomes[0].AssetRef)
	}
}

func TestUploadService_Submit_ImmediateOriginalFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t)
	p.Dest.FailNext(1)

	got, err := p.Service.Submit(ctx, testutil.Task(t, "party", moments.SyncImmediate))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got.State != moments.StatePublished {
		t.Errorf("State = %q, want %q", got.State, moments.StatePublished)
	}
	if got.OriginalSynced {
		t.Error("OriginalSynced = true after failed upload")
	}
	if !errors.Is(got.OriginalErr, moments.ErrOriginalUpload) {
		t.Errorf("OriginalErr = %v, want ErrOriginalUpload", got.OriginalErr)
	}

	entry, err := p.Queue.Get(ctx, got.Record.ID)
	if err != nil {
		t.Fatalf("queue Get() error = %v", err)
	}
	if entry == nil {
		t.Fatal("original is no longer queued")
	}
	if entry.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", entry.Attempts)
	}
	if entry.LastError == "" {
		t.Error("LastError is empty")
	}

	feed, _ := p.DB.ListFeed(ctx, 10)
	if len(feed) != 1 {
		t.Errorf("len(feed) = %d, want 1", len(feed))
	}
}

func TestUploadService_Submit_ImmediateWithFullQueue(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t, testutil.WithQueueMaxSize(10))

	got, err := p.Service.Submit(ctx, testutil.Task(t, "party", moments.SyncImmediate))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got.State != moments.StatePublished {
		t.Errorf("State = %q, want %q", got.State, moments.StatePublished)
	}
	if !got.OriginalSynced || got.OriginalErr != nil {
		t.Errorf("OriginalSynced = %v, OriginalErr = %v; want direct upload", got.OriginalSynced, got.OriginalErr)
	}
	if p.Dest.Attempts() != 1 {
		t.Errorf("destination attempts = %d, want 1", p.Dest.Attempts())
	}

	rec, _ := p.DB.Get(ctx, got.Record.ID)
	if rec == nil || !rec.OriginalSynced() || rec.OriginalAssetRef != got.Record.OriginalAssetRef {
		t.Errorf("record = %+v, want original reference %q", rec, got.Record.OriginalAssetRef)
	}
	if n, _ := p.Queue.Count(ctx); n != 0 {
		t.Errorf("queue Count() = %d, want 0", n)
	}
	if len(p.Gate.Requests()) != 1 {
		t.Errorf("moderation requests = %d, want 1", len(p.Gate.Requests()))
	}
	if feed, _ := p.DB.ListFeed(ctx, 10); len(feed) != 1 {
		t.Errorf("len(feed) = %d, want 1", len(feed))
	}
}

func TestUploadService_Submit_ImmediateWithFullQueueAndFailedUpload(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t, testutil.WithQueueMaxSize(10))
	p.Dest.FailNext(1)

	got, err := p.Service.Submit(ctx, testutil.Task(t, "party", moments.SyncImmediate))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got.State != moments.StatePublished {
		t.Errorf("State = %q, want %q", got.State, moments.StatePublished)
	}
	if !errors.Is(got.OriginalErr, moments.ErrOriginalUpload) {
		t.Errorf("OriginalErr = %v, want ErrOriginalUpload", got.OriginalErr)
	}
	if got.OriginalSynced {
		t.Error("OriginalSynced = true after failed upload")
	}

	rec, _ := p.DB.Get(ctx, got.Record.ID)
	if rec == nil || rec.OriginalSynced() {
		t.Errorf("record = %+v, want placeholder original", rec)
	}
	if feed, _ := p.DB.ListFeed(ctx, 10); len(feed) != 1 {
		t.Errorf("len(feed) = %d, want 1", len(feed))
	}
}

func TestUploadService_Submit_DeferredWithFullQueue(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t, testutil.WithQueueMaxSize(10))

	got, err := p.Service.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
	if !errors.Is(err, moments.ErrQueuePersist) {
		t.Fatalf("Submit() error = %v, want ErrQueuePersist", err)
	}
	if se, ok := moments.AsStepError(err); !ok || se.Step != moments.StepEnqueue {
		t.Errorf("AsStepError() = %+v, want step %q", se, moments.StepEnqueue)
	}
	if got == nil || got.State != moments.StateFailed {
		t.Fatalf("result = %+v, want state failed", got)
	}
	if rec, _ := p.DB.Get(ctx, got.Record.ID); rec == nil {
		t.Error("registered record is missing")
	}
	if p.Dest.Attempts() != 0 {
		t.Errorf("destination attempts = %d, want 0", p.Dest.Attempts())
	}
}

func TestUploadService_Submit_Rejected(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t)
	p.Gate = testutil.NewScriptedGate(moments.Rejected("Please keep it family friendly"))
	svc := rewire(p, moments.Options{})

	got, err := svc.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
	if !errors.Is(err, moments.ErrModerationRejected) {
		t.Fatalf("Submit() error = %v, want ErrModerationRejected", err)
	}
	se, ok := moments.AsStepError(err)
	if !ok {
		t.Fatalf("Submit() error %T is not a StepError", err)
	}
	if se.Message != "Please keep it family friendly" {
		t.Errorf("Message = %q, want the gate's message verbatim", se.Message)
	}
	if se.Step != moments.StepModerate {
		t.Errorf("Step = %q, want %q", se.Step, moments.StepModerate)
	}
	if got == nil || got.State != moments.StateRejected {
		t.Fatalf("result = %+v, want state rejected", got)
	}

	feed, _ := p.DB.ListFeed(ctx, 10)
	if len(feed) != 0 {
		t.Errorf("len(feed) = %d, want 0", len(feed))
	}
	if shots, _ := p.DB.Shots(ctx, "device-1"); shots != 0 {
		t.Errorf("Shots() = %d, want 0", shots)
	}

	// Without purging, the record and queued original stay.
	rec, _ := p.DB.Get(ctx, got.Record.ID)
	if rec == nil {
		t.Error("record was deleted without purge enabled")
	}
	if n, _ := p.Queue.Count(ctx); n != 1 {
		t.Errorf("queue Count() = %d, want 1", n)
	}
}

func TestUploadService_Submit_RejectedWithPurge(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t)
	p.Gate = testutil.NewScriptedGate(moments.Rejected(""))
	svc := rewire(p, moments.Options{PurgeRejected: true})

	got, err := svc.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
	if !errors.Is(err, moments.ErrModerationRejected) {
		t.Fatalf("Submit() error = %v, want ErrModerationRejected", err)
	}
	if se, _ := moments.AsStepError(err); se.Message != moments.ErrModerationRejected.Error() {
		t.Errorf("Message = %q, want default rejection message", se.Message)
	}

	rec, err := p.DB.Get(ctx, got.Record.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec != nil {
		t.Error("record survived purge")
	}
	if paths := p.Store.Paths(); len(paths) != 0 {
		t.Errorf("optimized assets after purge = %v, want none", paths)
	}
	if n, _ := p.Queue.Count(ctx); n != 0 {
		t.Errorf("queue Count() = %d, want 0", n)
	}
}

func TestUploadService_Submit_Failures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(p *testutil.Pipeline)
		data       []byte
		wantKind   error
		wantStep   moments.Step
		wantRecord bool
	}{
		{
			name:     "corrupt photo",
			setup:    func(p *testutil.Pipeline) {},
			data:     []byte("not a photo"),
			wantKind: moments.ErrCompression,
			wantStep: moments.StepCompress,
		},
		{
			name:     "optimized upload fails",
			setup:    func(p *testutil.Pipeline) { p.Store.SetFail(true) },
			wantKind: moments.ErrTransport,
			wantStep: moments.StepUploadOptimized,
		},
		{
			name:     "registration fails",
			setup:    func(p *testutil.Pipeline) { p.Metadata.SetFailCreate(true) },
			wantKind: moments.ErrRegistration,
			wantStep: moments.StepRegister,
		},
		{
			name:       "moderation unavailable",
			setup:      func(p *testutil.Pipeline) { p.Gate.SetError(errors.New("connection refused")) },
			wantKind:   moments.ErrModerationUnavailable,
			wantStep:   moments.StepModerate,
			wantRecord: true,
		},
		{
			name:       "publish fails",
			setup:      func(p *testutil.Pipeline) { p.Feed.SetFail(true) },
			wantKind:   moments.ErrPublish,
			wantStep:   moments.StepPublish,
			wantRecord: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p := testutil.NewTestPipeline(t)
			tt.setup(p)

			task := testutil.Task(t, "party", moments.SyncDeferred)
			if tt.data != nil {
				task.File.Data = tt.data
			}

			got, err := p.Service.Submit(ctx, task)
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.wantKind)
			}
			se, _ := moments.AsStepError(err)
			if se.Step != tt.wantStep {
				t.Errorf("Step = %q, want %q", se.Step, tt.wantStep)
			}

			if !tt.wantRecord {
				if got != nil {
					t.Errorf("result = %+v, want nil before registration", got)
				}
				if n, _ := p.Queue.Count(ctx); n != 0 {
					t.Errorf("queue Count() = %d, want 0", n)
				}
			} else {
				if got == nil || got.State != moments.StateFailed {
					t.Fatalf("result = %+v, want state failed", got)
				}
				rec, _ := p.DB.Get(ctx, got.Record.ID)
				if rec == nil {
					t.Error("registered record is missing")
				}
			}

			feed, _ := p.DB.ListFeed(ctx, 10)
			if len(feed) != 0 {
				t.Errorf("len(feed) = %d, want 0", len(feed))
			}
			if shots, _ := p.DB.Shots(ctx, "device-1"); shots != 0 {
				t.Errorf("Shots() = %d, want 0", shots)
			}

			history, err := p.Service.History(ctx, 10)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(history) != 1 || history[0].FailedStep != tt.wantStep {
				t.Errorf("History() = %+v, want one failure at %q", history, tt.wantStep)
			}
		})
	}
}

func TestUploadService_Submit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(task *moments.UploadTask)
	}{
		{name: "missing moment", mutate: func(task *moments.UploadTask) { task.MomentID = "" }},
		{name: "missing author", mutate: func(task *moments.UploadTask) { task.Author = moments.Author{} }},
		{name: "missing device", mutate: func(task *moments.UploadTask) { task.Device.ID = "" }},
		{name: "empty file", mutate: func(task *moments.UploadTask) { task.File.Data = nil }},
		{name: "unknown sync preference", mutate: func(task *moments.UploadTask) { task.Sync = "later" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewTestPipeline(t)
			task := testutil.Task(t, "party", moments.SyncImmediate)
			tt.mutate(task)

			_, err := p.Service.Submit(context.Background(), task)
			if !errors.Is(err, moments.ErrInvalidSubmission) {
				t.Errorf("Submit() error = %v, want ErrInvalidSubmission", err)
			}
			if paths := p.Store.Paths(); len(paths) != 0 {
				t.Errorf("stored paths = %v, want none", paths)
			}
		})
	}
}

func TestUploadService_Submit_DefaultsToImmediate(t *testing.T) {
	p := testutil.NewTestPipeline(t)
	task := testutil.Task(t, "party", "")

	got, err := p.Service.Submit(context.Background(), task)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !got.OriginalSynced {
		t.Error("OriginalSynced = false, want immediate sync by default")
	}
}

func TestUploadService_Submit_Quota(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t, testutil.WithMaxShots(2))

	for i := 0; i < 2; i++ {
		got, err := p.Service.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
		if err != nil {
			t.Fatalf("Submit() #%d error = %v", i+1, err)
		}
		if got.ShotsUsed != i+1 {
			t.Errorf("ShotsUsed = %d, want %d", got.ShotsUsed, i+1)
		}
	}

	_, err := p.Service.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
	if !errors.Is(err, moments.ErrQuotaExceeded) {
		t.Fatalf("Submit() error = %v, want ErrQuotaExceeded", err)
	}

	used, limit, err := p.Service.Quota(ctx, moments.DeviceIdentity{ID: "device-1"})
	if err != nil {
		t.Fatalf("Quota() error = %v", err)
	}
	if used != 2 || limit != 2 {
		t.Errorf("Quota() = %d/%d, want 2/2", used, limit)
	}

	// Other devices have their own count.
	task := testutil.Task(t, "party", moments.SyncDeferred)
	task.Device = moments.DeviceIdentity{ID: "device-2"}
	if _, err := p.Service.Submit(ctx, task); err != nil {
		t.Errorf("Submit() from other device error = %v", err)
	}
}

func TestUploadService_Submit_RejectionDoesNotUseShot(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t, testutil.WithMaxShots(1))
	p.Gate = testutil.NewScriptedGate(moments.Rejected("blurry"))
	svc := rewire(p, moments.Options{MaxShots: 1})

	if _, err := svc.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred)); !errors.Is(err, moments.ErrModerationRejected) {
		t.Fatalf("first Submit() error = %v, want rejection", err)
	}
	if _, err := svc.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred)); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
}

func TestUploadService_Submit_UniqueRecords(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t)

	seen := map[string]bool{}
	paths := map[string]bool{}
	for i := 0; i < 3; i++ {
		got, err := p.Service.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if seen[got.Record.ID] {
			t.Errorf("duplicate record id %s", got.Record.ID)
		}
		if paths[got.Record.OptimizedPath] {
			t.Errorf("duplicate optimized path %s", got.Record.OptimizedPath)
		}
		seen[got.Record.ID] = true
		paths[got.Record.OptimizedPath] = true
	}

	feed, _ := p.DB.ListFeed(ctx, 10)
	if len(feed) != 3 {
		t.Errorf("len(feed) = %d, want 3", len(feed))
	}
}

func TestUploadService_Submit_InProgress(t *testing.T) {
	p := testutil.NewTestPipeline(t)
	blocking := testutil.NewBlockingCompressor(compress.NewImagingCompressor(config.CompressionConfig{}))
	svc := moments.NewUploadService(moments.Components{
		Compressor: blocking,
		Store:      p.Store,
		Metadata:   p.Metadata,
		Queue:      p.Queue,
		Syncer:     p.Syncer,
		Gate:       p.Gate,
		Feed:       p.Feed,
		Quota:      p.DB,
		History:    p.DB,
		Clock:      p.Clock,
		IDs:        p.IDs,
	}, moments.Options{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), testutil.Task(t, "party", moments.SyncDeferred))
		done <- err
	}()

	<-blocking.Started()
	_, err := svc.Submit(context.Background(), testutil.Task(t, "party", moments.SyncDeferred))
	if !errors.Is(err, moments.ErrSubmissionInProgress) {
		t.Errorf("concurrent Submit() error = %v, want ErrSubmissionInProgress", err)
	}

	blocking.Release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("first Submit() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("first Submit() did not finish")
	}
}

func TestUploadService_Submit_CancelledDuringCompression(t *testing.T) {
	p := testutil.NewTestPipeline(t)
	blocking := testutil.NewBlockingCompressor(compress.NewImagingCompressor(config.CompressionConfig{}))
	svc := moments.NewUploadService(moments.Components{
		Compressor: blocking,
		Store:      p.Store,
		Metadata:   p.Metadata,
		Queue:      p.Queue,
		Syncer:     p.Syncer,
		Gate:       p.Gate,
		Feed:       p.Feed,
		Quota:      p.DB,
		Clock:      p.Clock,
		IDs:        p.IDs,
	}, moments.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		res *moments.SubmitResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := svc.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
		done <- result{res, err}
	}()

	<-blocking.Started()
	cancel()

	got := <-done
	if !errors.Is(got.err, moments.ErrCompression) {
		t.Fatalf("Submit() error = %v, want ErrCompression", got.err)
	}
	if got.res != nil {
		t.Errorf("result = %+v, want nil", got.res)
	}
	if paths := p.Store.Paths(); len(paths) != 0 {
		t.Errorf("stored paths = %v, want none", paths)
	}
}

func TestUploadService_History(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestPipeline(t)
	p.Gate = testutil.NewScriptedGate(moments.Accepted(""), moments.Rejected("no"))
	svc := rewire(p, moments.Options{})

	first, err := svc.Submit(ctx, testutil.Task(t, "party", moments.SyncDeferred))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := svc.Submit(ctx, testutil.Task(t, "dinner", moments.SyncImmediate)); err == nil {
		t.Fatal("second Submit() expected rejection")
	}

	history, err := svc.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(history))
	}
	if history[0].MomentID != "dinner" || history[0].State != moments.StateRejected || history[0].Message != "no" {
		t.Errorf("newest submission = %+v", history[0])
	}
	if history[1].RecordID != first.Record.ID || history[1].State != moments.StatePublished || history[1].Sync != moments.SyncDeferred {
		t.Errorf("oldest submission = %+v", history[1])
	}
}

func TestStepError_UserMessage(t *testing.T) {
	err := &moments.StepError{Step: moments.StepCompress, Kind: moments.ErrCompression, Message: moments.ErrCompression.Error()}
	if got, want := err.UserMessage(), "photo could not be processed (step: compress)"; got != want {
		t.Errorf("UserMessage() = %q, want %q", got, want)
	}
}

// rewire rebuilds the pipeline's service after a component was replaced.
func rewire(p *testutil.Pipeline, opts moments.Options) *moments.UploadService {
	return moments.NewUploadService(moments.Components{
		Compressor: compress.NewImagingCompressor(config.CompressionConfig{}),
		Store:      p.Store,
		Metadata:   p.Metadata,
		Queue:      p.Queue,
		Syncer:     p.Syncer,
		Gate:       p.Gate,
		Feed:       p.Feed,
		Quota:      p.DB,
		History:    p.DB,
		Clock:      p.Clock,
		IDs:        p.IDs,
	}, opts)
}
