// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for vnote. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// Environment variables keep the names the companion tooling already
// uses (MINIO_*, DIFY_*, AUTO_*), so a vnote service drops into an
// existing deployment without re-plumbing its environment.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Library LibraryConfig `toml:"library"`
	Log     LogConfig     `toml:"log"`
	Minio   MinioConfig   `toml:"minio"`
	Dify    DifyConfig    `toml:"dify"`
	Ingest  IngestConfig  `toml:"ingest"`
}

// ServerConfig controls the HTTP service: listen address, pid file, and
// graceful shutdown timing.
type ServerConfig struct {
	Addr            string `toml:"addr"`
	PidFile         string `toml:"pid_file"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// LibraryConfig locates the note library on disk. Dir holds the per-task
// note directories; StateDir holds service state (snapshot database,
// profile registry, ingest history). Empty values resolve to the
// platform data directory at load time.
type LibraryConfig struct {
	Dir      string `toml:"dir"`
	StateDir string `toml:"state_dir"`
}

// LogConfig controls log output behavior: level, format, destination,
// and rotation of the optional log file.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// MinioConfig holds object store connection settings. BucketPrefix is
// combined with the active profile name to derive the bucket; Object and
// Tombstone prefixes are forced to end in "/" during resolution.
type MinioConfig struct {
	Endpoint        string `toml:"endpoint"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	Secure          bool   `toml:"secure"`
	Region          string `toml:"region"`
	BucketPrefix    string `toml:"bucket_prefix"`
	ObjectPrefix    string `toml:"object_prefix"`
	TombstonePrefix string `toml:"tombstone_prefix"`
}

// DifyConfig holds the RAG service connection settings. DatasetID is the
// shared fallback when the per-kind note/transcript dataset ids are not
// set. These are environment defaults; the active registry profile may
// override any non-empty field at runtime.
type DifyConfig struct {
	BaseURL             string `toml:"base_url"`
	DatasetID           string `toml:"dataset_id"`
	NoteDatasetID       string `toml:"note_dataset_id"`
	TranscriptDatasetID string `toml:"transcript_dataset_id"`
	ServiceAPIKey       string `toml:"service_api_key"`
	AppAPIKey           string `toml:"app_api_key"`
	AppUser             string `toml:"app_user"`
	IndexingTechnique   string `toml:"indexing_technique"`
	Timeout             string `toml:"timeout"`
}

// IngestConfig controls the generate pipeline: worker pool sizing, the
// post-success automation switches, and the transcript merge caps used
// when deriving SRT cues and RAG chunks.
//
// AutoDify is tri-state: "true"/"false" force the behavior, "auto"
// (default) enables ingestion when a service key plus at least one
// dataset id is configured.
type IngestConfig struct {
	Workers         int    `toml:"workers"`
	QueueSize       int    `toml:"queue_size"`
	AutoBundle      bool   `toml:"auto_bundle"`
	AutoDify        string `toml:"auto_dify"`
	MergeMaxChars   int    `toml:"merge_max_chars"`
	MergeMaxSeconds int    `toml:"merge_max_seconds"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Addr       *string // --addr flag
	LibraryDir *string // --library-dir flag
	LogLevel   *string // --log-level flag
	LogFile    *string // --log-file flag
}
