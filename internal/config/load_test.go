package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

// clearEnv unsets every override variable so tests control the chain.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		EnvConfigDir,
		EnvMinioEndpoint, EnvMinioAccessKey, EnvMinioSecretKey, EnvMinioSecure,
		EnvMinioRegion, EnvMinioBucketPrefix, EnvMinioObjectPrefix, EnvMinioTombstonePrefix,
		EnvDifyBaseURL, EnvDifyDatasetID, EnvDifyNoteDatasetID, EnvDifyTranscriptDatasetID,
		EnvDifyServiceAPIKey, EnvDifyAppAPIKey, EnvDifyAppUser, EnvDifyIndexingTechnique,
		EnvDifyTimeoutSeconds, EnvAutoBundle, EnvAutoDify, EnvMergeMaxChars, EnvMergeMaxSeconds,
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_ValidFullConfig(t *testing.T) {
	tomlContent := `
[server]
addr = "0.0.0.0:9000"
pid_file = "/tmp/vnote.pid"
shutdown_timeout = "10s"

[library]
dir = "/data/notes"
state_dir = "/data/state"

[log]
level = "debug"
file = "/tmp/vnote.log"
format = "json"
max_size_mb = 10
max_backups = 2
max_age_days = 7

[minio]
endpoint = "minio.local:9000"
access_key = "ak"
secret_key = "sk"
secure = true
region = "us-east-1"
bucket_prefix = "vids-"
object_prefix = "objects"
tombstone_prefix = "gone"

[dify]
base_url = "https://dify.local"
dataset_id = "ds-shared"
note_dataset_id = "ds-note"
transcript_dataset_id = "ds-tr"
service_api_key = "svc-key"
app_api_key = "app-key"
app_user = "tester"
indexing_technique = "economy"
timeout = "30s"

[ingest]
workers = 2
queue_size = 16
auto_bundle = true
auto_dify = "false"
merge_max_chars = 500
merge_max_seconds = 45
`

	path := writeTestConfig(t, tomlContent)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/vnote.pid", cfg.Server.PidFile)
	assert.Equal(t, "10s", cfg.Server.ShutdownTimeout)

	assert.Equal(t, "/data/notes", cfg.Library.Dir)
	assert.Equal(t, "/data/state", cfg.Library.StateDir)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)

	assert.Equal(t, "minio.local:9000", cfg.Minio.Endpoint)
	assert.True(t, cfg.Minio.Secure)
	assert.Equal(t, "vids-", cfg.Minio.BucketPrefix)

	assert.Equal(t, "https://dify.local", cfg.Dify.BaseURL)
	assert.Equal(t, "ds-note", cfg.Dify.NoteDatasetID)
	assert.Equal(t, "economy", cfg.Dify.IndexingTechnique)

	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.True(t, cfg.Ingest.AutoBundle)
	assert.Equal(t, "false", cfg.Ingest.AutoDify)
	assert.Equal(t, 500, cfg.Ingest.MergeMaxChars)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[server]\naddr = \"127.0.0.1:9999\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "ragvideo-", cfg.Minio.BucketPrefix)
	assert.Equal(t, "bilinote", cfg.Dify.AppUser)
	assert.Equal(t, "high_quality", cfg.Dify.IndexingTechnique)
	assert.Equal(t, 900, cfg.Ingest.MergeMaxChars)
	assert.Equal(t, "auto", cfg.Ingest.AutoDify)
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_UnknownKeySuggestion(t *testing.T) {
	path := writeTestConfig(t, "[minio]\nendpont = \"x:9000\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"endpont"`)
	assert.Contains(t, err.Error(), `"endpoint"`)
}

func TestLoad_UnknownSectionSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[difi]\nbase_url = \"http://x\"\napp_user = \"u\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"difi"`)
	assert.Contains(t, err.Error(), `"dify"`)
}

// --- Resolve ---

func TestResolve_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeTestConfig(t, "[minio]\nendpoint = \"file.local:9000\"\naccess_key = \"file-ak\"\n")

	env := EnvOverrides{
		MinioEndpoint: "env.local:9000",
		MinioSecure:   "yes",
		DifyAppUser:   " someone ",
	}

	cfg, err := Resolve(env, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, "env.local:9000", cfg.Minio.Endpoint)
	assert.Equal(t, "file-ak", cfg.Minio.AccessKey)
	assert.True(t, cfg.Minio.Secure)
	assert.Equal(t, "someone", cfg.Dify.AppUser)
}

func TestResolve_CLIOverridesEnv(t *testing.T) {
	clearEnv(t)
	path := writeTestConfig(t, "[server]\naddr = \"file:1\"\n")

	addr := "127.0.0.1:7777"
	level := "warn"
	cfg, err := Resolve(EnvOverrides{}, CLIOverrides{
		ConfigPath: path,
		Addr:       &addr,
		LogLevel:   &level,
	})
	require.NoError(t, err)

	assert.Equal(t, addr, cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestResolve_NormalizesPrefixes(t *testing.T) {
	clearEnv(t)
	path := writeTestConfig(t, "[minio]\nobject_prefix = \"objects\"\ntombstone_prefix = \"gone\"\n")

	cfg, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, "objects/", cfg.Minio.ObjectPrefix)
	assert.Equal(t, "gone/", cfg.Minio.TombstonePrefix)
}

func TestResolve_FillsLibraryDirs(t *testing.T) {
	clearEnv(t)
	configDir := t.TempDir()
	t.Setenv(EnvConfigDir, configDir)

	cfg, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(configDir, "notes"), cfg.Library.Dir)
	assert.Equal(t, configDir, cfg.Library.StateDir)
}

func TestResolve_DifyTimeoutSecondsEnv(t *testing.T) {
	clearEnv(t)

	cfg, err := Resolve(EnvOverrides{DifyTimeoutSeconds: "90"}, CLIOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
	})
	require.NoError(t, err)

	assert.Equal(t, "90s", cfg.Dify.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Dify.TimeoutDuration())
}

func TestResolve_MergeCapEnvIgnoredWhenInvalid(t *testing.T) {
	clearEnv(t)

	cfg, err := Resolve(EnvOverrides{MergeMaxChars: "not-a-number", MergeMaxSeconds: "-3"}, CLIOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
	})
	require.NoError(t, err)

	assert.Equal(t, 900, cfg.Ingest.MergeMaxChars)
	assert.Equal(t, 60, cfg.Ingest.MergeMaxSeconds)
}

// --- validation ---

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"bad addr", func(c *Config) { c.Server.Addr = "no-port" }, "addr"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log level"},
		{"bad log format", func(c *Config) { c.Log.Format = "yaml" }, "log format"},
		{"scheme in endpoint", func(c *Config) { c.Minio.Endpoint = "http://minio:9000" }, "without scheme"},
		{"bad dify url", func(c *Config) { c.Dify.BaseURL = "not a url" }, "base_url"},
		{"workers too high", func(c *Config) { c.Ingest.Workers = 1000 }, "workers"},
		{"zero queue", func(c *Config) { c.Ingest.QueueSize = 0 }, "queue_size"},
		{"bad auto_dify", func(c *Config) { c.Ingest.AutoDify = "maybe" }, "auto_dify"},
		{"zero merge chars", func(c *Config) { c.Ingest.MergeMaxChars = 0 }, "merge_max_chars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}
