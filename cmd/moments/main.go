package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moments/internal/app"
	"moments/internal/config"
	"moments/internal/moments"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a MomentsApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Submit", "Sync").
func newApp(cmd *cobra.Command, operation, parameters string) (*app.MomentsApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewMomentsApp(cmd.Context(), cfg, operation, parameters, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "moments",
	Short:        "Contribute wedding photos to the shared gallery",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration, device database and queue key",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := app.InitConfig(defaults.ConfigPath, defaults.BaseDir)
		if err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Device ID: %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Device ID:   %s\n", cfg.DeviceID)
		fmt.Printf("Device Name: %s\n", cfg.DeviceName)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Optimized:   %s\n", cfg.Optimized.Type)
		fmt.Printf("Original:    %s\n", cfg.Original.Type)
		fmt.Printf("Metadata:    %s\n", cfg.Metadata.Type)
		fmt.Printf("Moderation:  %s\n", cfg.Moderation.Type)
		fmt.Printf("Feed:        %s\n", cfg.Feed.Type)
		fmt.Printf("Queue:       %s (max %d attempts)\n", cfg.Queue.Type, cfg.Queue.MaxAttempts)
		fmt.Printf("Sync:        %s every %s\n", cfg.Sync.Condition, cfg.Sync.Interval.Duration)
		fmt.Printf("Max Shots:   %d\n", cfg.Quota.MaxShots)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the device database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the database schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := app.DatabaseStatus(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Schema version: %d (latest %d)\n", st.Current, st.Latest)
		switch {
		case st.Dirty:
			fmt.Println("State: dirty, a migration failed part way")
		case st.UpToDate():
			fmt.Println("State: up to date")
		default:
			fmt.Println("State: run 'moments db migrate'")
		}
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a snapshot of the device database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.BackupDatabase(cfg, args[0]); err != nil {
			return err
		}
		fmt.Printf("Database written to %s\n", args[0])
		return nil
	},
}

// submit command
var submitCmd = &cobra.Command{
	Use:   "submit FILE",
	Short: "Contribute a photo to a moment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		moment, _ := cmd.Flags().GetString("moment")
		author, _ := cmd.Flags().GetString("author")
		authorID, _ := cmd.Flags().GetString("author-id")
		deferred, _ := cmd.Flags().GetBool("defer")

		a, err := newApp(cmd, "Submit", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Submit(cmd.Context(), app.SubmitRequest{
			Path:       args[0],
			MomentID:   moment,
			AuthorID:   authorID,
			AuthorName: author,
			Deferred:   deferred,
		})
		if err != nil {
			if se, ok := moments.AsStepError(err); ok {
				return errors.New(se.UserMessage())
			}
			return err
		}

		fmt.Printf("Published %s\n", result.Record.OptimizedURL)
		switch {
		case result.OriginalSynced:
			fmt.Printf("Original uploaded: %s\n", result.Record.OriginalAssetRef)
		case result.OriginalErr != nil:
			fmt.Printf("Original queued for later upload: %v\n", result.OriginalErr)
		default:
			fmt.Println("Original queued for later upload.")
		}
		if result.ShotsUsed > 0 {
			fmt.Printf("Shots used: %d\n", result.ShotsUsed)
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload queued originals",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		ignoreCondition, _ := cmd.Flags().GetBool("ignore-condition")

		a, err := newApp(cmd, "Sync", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if watch {
			fmt.Println("Watching the queue, press Ctrl-C to stop.")
			return a.Watch(cmd.Context(), printOutcomes)
		}

		outcomes, err := a.Sync(cmd.Context(), ignoreCondition)
		if errors.Is(err, app.ErrNotReady) {
			fmt.Println("Sync condition not met, nothing uploaded. Use --ignore-condition to force.")
			return nil
		}
		if len(outcomes) == 0 && err == nil {
			fmt.Println("Nothing to sync.")
			return nil
		}
		printOutcomes(outcomes)
		return err
	},
}

func printOutcomes(outcomes []*moments.DrainOutcome) {
	for _, o := range outcomes {
		switch o.Result {
		case moments.DrainSynced, moments.DrainAlreadySynced:
			fmt.Printf("%-15s  %s  %s\n", o.Result, o.RecordID, o.AssetRef)
		default:
			fmt.Printf("%-15s  %s  attempt %d: %v\n", o.Result, o.RecordID, o.Attempts, o.Err)
		}
	}
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect queued originals",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued originals",
	RunE: func(cmd *cobra.Command, args []string) error {
		exhausted, _ := cmd.Flags().GetBool("exhausted")

		a, err := newApp(cmd, "QueueList", "")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Pending(cmd.Context(), exhausted)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-20s  %-12s  %8d  attempts:%d  next:%s",
				e.RecordID,
				e.FileName,
				e.FolderID,
				e.Size,
				e.Attempts,
				e.NextAttemptAt.Format("2006-01-02 15:04:05"),
			)
			if e.LastError != "" {
				fmt.Printf("  last error: %s", e.LastError)
			}
			fmt.Println()
		}
		size, err := a.QueueSize(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d original(s), %d bytes queued\n", len(entries), size)
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry RECORD_ID",
	Short: "Reset a queued original so the next sync retries it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "QueueRetry", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RetryOriginal(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Original for %s will be retried on the next sync.\n", args[0])
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View submission history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History", "")
		if err != nil {
			return err
		}
		defer a.Close()

		subs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(subs) == 0 {
			fmt.Println("No submissions recorded.")
			return nil
		}

		for _, s := range subs {
			duration := s.FinishedAt.Sub(s.StartedAt).Truncate(time.Millisecond)
			fmt.Printf("#%d  %s  %-20s  %-12s  %-9s  %-10s  %s",
				s.ID,
				s.StartedAt.Format("2006-01-02 15:04:05"),
				s.FileName,
				s.MomentID,
				s.Sync,
				s.State,
				duration,
			)
			if s.FailedStep != "" {
				fmt.Printf("  [%s] %s", s.FailedStep, s.Message)
			}
			fmt.Println()
		}
		return nil
	},
}

// quota command
var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "View shots used on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Quota", "")
		if err != nil {
			return err
		}
		defer a.Close()

		used, limit, err := a.Quota(cmd.Context())
		if err != nil {
			return err
		}
		if limit == 0 {
			fmt.Printf("%d shot(s) used, no limit\n", used)
			return nil
		}
		fmt.Printf("%d of %d shot(s) used\n", used, limit)
		return nil
	},
}

// feed command
var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "View the live feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "Feed", "")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Feed(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("The feed is empty.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-12s  %-15s  %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.CategoryID,
				e.Author,
				e.URL,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Also log progress to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbBackupCmd)

	// queue subcommands
	queueCmd.AddCommand(queueListCmd)
	queueListCmd.Flags().Bool("exhausted", false, "List originals that gave up after repeated failures")
	queueCmd.AddCommand(queueRetryCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringP("moment", "m", "", "Moment (category) the photo belongs to")
	submitCmd.Flags().StringP("author", "a", "", "Name shown with the photo")
	submitCmd.Flags().String("author-id", "", "Identifier of the contributing guest")
	submitCmd.Flags().Bool("defer", false, "Queue the original and upload it on the next sync")
	submitCmd.MarkFlagRequired("moment")
	submitCmd.MarkFlagRequired("author")
	submitCmd.MarkFlagRequired("author-id")
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolP("watch", "w", false, "Keep running and sync whenever the condition holds")
	syncCmd.Flags().Bool("ignore-condition", false, "Upload even if the sync condition does not hold")
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of submissions to show")
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(feedCmd)
	feedCmd.Flags().IntP("limit", "n", 20, "Maximum number of entries to show")
}
