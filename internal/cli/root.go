// Package cli provides the command-line interface for markpilot.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/robfarr/markpilot/internal/client"
	"github.com/robfarr/markpilot/internal/config"
	"github.com/robfarr/markpilot/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Shared per-invocation state, wired in PersistentPreRunE
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error

	apiClient    *client.Client
	stateDB      *store.DB
	authStore    *store.AuthStore
	reportStore  *store.ReportStore
	historyStore *store.HistoryStore
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "markpilot",
	Short: "Score assignments with the markpilot grading service",
	Long: `Markpilot is a terminal client for the markpilot assignment-scoring
service: upload an assignment (and optionally a rubric), let the AI pipeline
analyze and score it, then read or download the graded report.

Authentication, scoring, and report generation all happen on the remote
service; markpilot keeps your session, drafts and history cached locally.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Nothing to wire for version and help
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)

		if !cfg.RealtimeEnabled() {
			logger.Warn("MARKPILOT_SOCKET_URL is not set, realtime features disabled")
		}

		var err error
		stateDB, err = store.Open(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("open local state: %w", err)
		}

		apiClient = client.New(cfg.APIURL, cfg.UploadURL, logger)

		authStore = store.NewAuthStore(apiClient, stateDB, logger)
		reportStore = store.NewReportStore(apiClient, stateDB, logger)
		historyStore = store.NewHistoryStore(apiClient, stateDB, logger)

		// Rehydration order matters: the auth store seeds the session cookie
		// everything else depends on.
		authStore.Rehydrate()
		reportStore.Rehydrate()
		historyStore.Rehydrate()

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stateDB != nil {
			if err := stateDB.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close state db: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// requireAuth fails fast for commands that need a session.
func requireAuth() error {
	if !authStore.Authenticated() {
		return fmt.Errorf("not logged in, run %q first", "markpilot login")
	}
	return nil
}
