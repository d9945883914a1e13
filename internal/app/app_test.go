package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"moments/internal/config"
	"moments/internal/moments"
	"moments/internal/testutil"
)

// newTestConfig returns a config that keeps every component in memory.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig("device-1", dir)
	cfg.DeviceName = "test phone"
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Optimized = config.StoreConfig{Type: "memory"}
	cfg.Original = config.DestinationConfig{Type: "memory"}
	cfg.Queue.Type = "memory"
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *MomentsApp {
	t.Helper()
	a, err := NewMomentsApp(context.Background(), cfg, "Test", "", Options{Clock: testutil.FixedClock()})
	if err != nil {
		t.Fatalf("NewMomentsApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writePhoto(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "IMG_0042.jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing photo: %v", err)
	}
	return path
}

func TestMomentsApp_Submit(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t))

	got, err := a.Submit(ctx, SubmitRequest{
		Path:       writePhoto(t, testutil.JPEG(t, 320, 240)),
		MomentID:   "cake",
		AuthorID:   "guest-7",
		AuthorName: "Bea",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got.State != moments.StatePublished {
		t.Errorf("State = %q, want %q", got.State, moments.StatePublished)
	}
	if !got.OriginalSynced {
		t.Errorf("OriginalSynced = false, OriginalErr = %v", got.OriginalErr)
	}

	used, limit, err := a.Quota(ctx)
	if err != nil {
		t.Fatalf("Quota() error = %v", err)
	}
	if used != 1 || limit != 10 {
		t.Errorf("Quota() = %d/%d, want 1/10", used, limit)
	}

	history, err := a.History(ctx, 5)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].FileName != "IMG_0042.jpg" || history[0].DeviceID != "device-1" {
		t.Errorf("History() = %+v", history)
	}

	entries, err := a.Feed(ctx, 10)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Author != "Bea" || entries[0].CategoryID != "cake" {
		t.Errorf("Feed() = %+v", entries)
	}
	if a.op.Failed() {
		t.Error("operation marked failed after successful submit")
	}
}

func TestMomentsApp_Submit_NotAnImage(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))

	_, err := a.Submit(context.Background(), SubmitRequest{
		Path:       writePhoto(t, []byte("just some text, not a photo")),
		MomentID:   "cake",
		AuthorID:   "guest-7",
		AuthorName: "Bea",
	})
	if !errors.Is(err, moments.ErrInvalidSubmission) {
		t.Errorf("Submit() error = %v, want ErrInvalidSubmission", err)
	}
	if !a.op.Failed() {
		t.Error("operation not marked failed")
	}
}

func TestMomentsApp_Submit_MissingFile(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))

	_, err := a.Submit(context.Background(), SubmitRequest{Path: "/nonexistent/photo.jpg", MomentID: "cake"})
	if err == nil {
		t.Error("Submit() expected error for missing file")
	}
}

func TestMomentsApp_DeferredSync(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t))

	got, err := a.Submit(ctx, SubmitRequest{
		Path:       writePhoto(t, testutil.JPEG(t, 64, 64)),
		MomentID:   "speeches",
		AuthorID:   "guest-7",
		AuthorName: "Bea",
		Deferred:   true,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	pending, err := a.Pending(ctx, false)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].RecordID != got.Record.ID {
		t.Fatalf("Pending() = %+v, want entry for %s", pending, got.Record.ID)
	}
	if size, err := a.QueueSize(ctx); err != nil || size <= 0 {
		t.Errorf("QueueSize() = %d, %v; want > 0", size, err)
	}

	outcomes, err := a.Sync(ctx, false)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Result != moments.DrainSynced {
		t.Errorf("Sync() = %+v, want one synced", outcomes)
	}

	if pending, _ := a.Pending(ctx, false); len(pending) != 0 {
		t.Errorf("Pending() after sync = %+v, want none", pending)
	}
	if exhausted, _ := a.Pending(ctx, true); len(exhausted) != 0 {
		t.Errorf("Pending(exhausted) = %+v, want none", exhausted)
	}
}

func TestMomentsApp_Sync_ConditionNotMet(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Sync = config.SyncConfig{Condition: "interface", PreferredInterfaces: []string{"no-such-interface-prefix"}}
	a := newTestApp(t, cfg)

	if _, err := a.Sync(context.Background(), false); !errors.Is(err, ErrNotReady) {
		t.Errorf("Sync() error = %v, want ErrNotReady", err)
	}
	if _, err := a.Sync(context.Background(), true); err != nil {
		t.Errorf("Sync(ignoreCondition) error = %v", err)
	}
}

func TestMomentsApp_RetryOriginal_Unknown(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))

	if err := a.RetryOriginal(context.Background(), "missing"); err == nil {
		t.Error("RetryOriginal() expected error for unknown record")
	}
}

func TestMomentsApp_Watch_StopsOnCancel(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Watch(ctx, nil); err != nil {
		t.Errorf("Watch() error = %v, want nil on cancel", err)
	}
}

func TestNewMomentsApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *config.Config)
	}{
		{
			name:   "invalid config",
			mutate: func(t *testing.T, cfg *config.Config) { cfg.DeviceID = "" },
		},
		{
			name: "unmigrated database",
			mutate: func(t *testing.T, cfg *config.Config) {
				cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}
			},
		},
		{
			name: "missing encryption key",
			mutate: func(t *testing.T, cfg *config.Config) {
				dir := t.TempDir()
				cfg.Encryption = config.EncryptionConfig{
					Type:          "age",
					IdentityPath:  filepath.Join(dir, "queue.key"),
					RecipientPath: filepath.Join(dir, "queue.pub"),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			tt.mutate(t, cfg)

			a, err := NewMomentsApp(context.Background(), cfg, "Test", "", Options{})
			if err == nil {
				a.Close()
				t.Fatal("NewMomentsApp() expected error")
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "moments.toml")

	cfg, err := InitConfig(configPath, filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	if cfg.DeviceID == "" {
		t.Error("DeviceID is empty")
	}

	read, err := config.ReadFromFile(configPath)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if read.DeviceID != cfg.DeviceID {
		t.Errorf("DeviceID = %q, want %q", read.DeviceID, cfg.DeviceID)
	}

	if _, err := os.Stat(cfg.Encryption.IdentityPath); err != nil {
		t.Errorf("identity not created: %v", err)
	}

	// The fresh config is immediately usable.
	a, err := NewMomentsApp(context.Background(), read, "Test", "", Options{})
	if err != nil {
		t.Fatalf("NewMomentsApp() error = %v", err)
	}
	defer a.Close()

	if _, err := InitConfig(configPath, filepath.Join(dir, "data")); err == nil {
		t.Error("second InitConfig() expected error")
	}
}

func TestBackupDatabase(t *testing.T) {
	dir := t.TempDir()
	cfg, err := InitConfig(filepath.Join(dir, "moments.toml"), filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}

	dest := filepath.Join(dir, "backup.db")
	if err := BackupDatabase(cfg, dest); err != nil {
		t.Fatalf("BackupDatabase() error = %v", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Errorf("backup not written: %v", err)
	}
}

func TestDatabaseStatus(t *testing.T) {
	dir := t.TempDir()
	cfg, err := InitConfig(filepath.Join(dir, "moments.toml"), filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}

	st, err := DatabaseStatus(cfg)
	if err != nil {
		t.Fatalf("DatabaseStatus() error = %v", err)
	}
	if !st.UpToDate() {
		t.Errorf("DatabaseStatus() = %+v, want up to date after InitConfig", st)
	}
}
