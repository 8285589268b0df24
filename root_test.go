package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxh52013145/VNote/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests that set
// globals directly must restore them so ordering stays irrelevant.

func withGlobals(t *testing.T, cfg *config.Config, verbose, quiet bool) {
	t.Helper()

	prevCfg, prevVerbose, prevQuiet := resolvedCfg, flagVerbose, flagQuiet
	resolvedCfg, flagVerbose, flagQuiet = cfg, verbose, quiet

	t.Cleanup(func() {
		resolvedCfg, flagVerbose, flagQuiet = prevCfg, prevVerbose, prevQuiet
	})
}

// --- buildLogger tests ---

func TestBuildLogger_ConfigLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "warn"
	withGlobals(t, cfg, false, false)

	logger := buildLogger()

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
}

func TestBuildLogger_VerboseOverridesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "error"
	withGlobals(t, cfg, true, false)

	logger := buildLogger()

	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_QuietOverridesVerbose(t *testing.T) {
	withGlobals(t, config.DefaultConfig(), true, true)

	logger := buildLogger()

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.True(t, logger.Enabled(ctx, slog.LevelError))
}

func TestUseJSONLogs(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		logFile string
		want    bool
	}{
		{"explicit json", "json", "", true},
		{"explicit text", "text", "", false},
		{"explicit text with file", "text", "/tmp/x.log", false},
		{"auto with log file", "auto", "/tmp/x.log", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, useJSONLogs(tt.format, tt.logFile))
		})
	}
}

// --- shared builder tests ---

func TestPidFilePath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Library.StateDir = "/var/lib/vnote"
	withGlobals(t, cfg, false, false)

	assert.Equal(t, filepath.Join("/var/lib/vnote", "vnote.pid"), pidFilePath())

	cfg.Server.PidFile = "/run/vnote.pid"
	assert.Equal(t, "/run/vnote.pid", pidFilePath())
}

func TestOpenSnapshot_CreatesStateDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Library.StateDir = filepath.Join(t.TempDir(), "nested", "state")
	withGlobals(t, cfg, false, false)

	snap, err := openSnapshot(slog.Default())
	require.NoError(t, err)

	require.NoError(t, snap.Close())
	assert.FileExists(t, filepath.Join(cfg.Library.StateDir, snapshotDBName))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Setenv(config.EnvConfigDir, t.TempDir())

	withGlobals(t, nil, false, false)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"config", "path", "--library-dir", "/tmp/lib-override"})
	require.NoError(t, cmd.Execute())

	require.NotNil(t, resolvedCfg)
	assert.Equal(t, "/tmp/lib-override", resolvedCfg.Library.Dir)
}
