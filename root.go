package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pxh52013145/VNote/internal/config"
	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/profile"
	"github.com/pxh52013145/VNote/internal/sync"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagLibraryDir string
	flagLogLevel   string
	flagLogFile    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// snapshotDBName is the scan snapshot database inside the state dir.
const snapshotDBName = "sync_snapshot.db"

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vnote",
		Short:   "Video note library sync",
		Long:    "Sync a video-note library between the local filesystem, an object store, and a RAG service.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagLibraryDir, "library-dir", "", "note library directory")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "log file path (rotated)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newItemsCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newCopyCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in resolvedCfg for use by
// subcommands. Only flags the user actually set are passed to the resolver.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	if cmd.Flags().Changed("library-dir") {
		cli.LibraryDir = &flagLibraryDir
	}
	if cmd.Flags().Changed("log-level") {
		cli.LogLevel = &flagLogLevel
	}
	if cmd.Flags().Changed("log-file") {
		cli.LogFile = &flagLogFile
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. When a log file is
// configured, output rotates through lumberjack instead of stderr.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	var logFile, format string
	if resolvedCfg != nil {
		switch resolvedCfg.Log.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		logFile = resolvedCfg.Log.File
		format = resolvedCfg.Log.Format
	}

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    resolvedCfg.Log.MaxSizeMB,
			MaxBackups: resolvedCfg.Log.MaxBackups,
			MaxAge:     resolvedCfg.Log.MaxAgeDays,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if useJSONLogs(format, logFile) {
		return slog.New(slog.NewJSONHandler(out, opts))
	}

	return slog.New(slog.NewTextHandler(out, opts))
}

// useJSONLogs decides the handler format. "auto" means text on a terminal
// and JSON everywhere else (log files, pipes, service managers).
func useJSONLogs(format, logFile string) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	if logFile != "" {
		return true
	}

	fd := os.Stderr.Fd()

	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// --- Shared component builders ---
// Every command wires the same stores from resolvedCfg; these helpers keep
// the construction in one place.

func newLibraryStore(logger *slog.Logger) *library.Store {
	return library.NewStore(resolvedCfg.Library.Dir, logger)
}

func newProfileRegistry(logger *slog.Logger) *profile.Registry {
	return profile.NewRegistry(filepath.Join(resolvedCfg.Library.StateDir, "dify.json"), logger)
}

// openSnapshot opens the per-profile scan snapshot database, creating the
// state dir on first use.
func openSnapshot(logger *slog.Logger) (*sync.SQLiteStore, error) {
	stateDir := resolvedCfg.Library.StateDir
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", stateDir, err)
	}

	return sync.NewStore(filepath.Join(stateDir, snapshotDBName), logger)
}

// newEngine wires a sync engine over the shared stores. The snapshot store
// may be nil for verbs that never read or persist snapshots.
func newEngine(lib *library.Store, snap *sync.SQLiteStore, dirty func() bool, logger *slog.Logger) *sync.Engine {
	return sync.NewEngine(sync.EngineConfig{
		Library:       lib,
		Snapshot:      snap,
		Registry:      newProfileRegistry(logger),
		Minio:         resolvedCfg.Minio,
		Dify:          dify.FromAppConfig(resolvedCfg.Dify),
		Logger:        logger,
		MaxSRTChars:   resolvedCfg.Ingest.MergeMaxChars,
		MaxSRTSeconds: resolvedCfg.Ingest.MergeMaxSeconds,
		LocalDirty:    dirty,
	})
}

// pidFilePath resolves the daemon pid file: configured path or the default
// inside the state dir.
func pidFilePath() string {
	if p := resolvedCfg.Server.PidFile; p != "" {
		return p
	}

	return filepath.Join(resolvedCfg.Library.StateDir, "vnote.pid")
}
