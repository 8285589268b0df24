package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and match what the companion tooling
// assumes when the corresponding environment variables are unset.
const (
	defaultAddr            = "127.0.0.1:8483"
	defaultShutdownTimeout = "30s"

	defaultLogLevel   = "info"
	defaultLogFormat  = "auto"
	defaultLogSizeMB  = 100
	defaultLogBackups = 3
	defaultLogAgeDays = 30

	defaultBucketPrefix    = "ragvideo-"
	defaultObjectPrefix    = "bundles/"
	defaultTombstonePrefix = "tombstones/"

	defaultDifyBaseURL    = "http://localhost"
	defaultDifyAppUser    = "bilinote"
	defaultDifyIndexing   = "high_quality"
	defaultDifyTimeout    = "60s"
	defaultIngestWorkers  = 4
	defaultIngestQueue    = 64
	defaultAutoDify       = "auto"
	defaultMergeChars     = 900
	defaultMergeSeconds   = 60
	defaultLibrarySubdir  = "notes"
	defaultConfigFileName = "config.toml"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            defaultAddr,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Log: LogConfig{
			Level:      defaultLogLevel,
			Format:     defaultLogFormat,
			MaxSizeMB:  defaultLogSizeMB,
			MaxBackups: defaultLogBackups,
			MaxAgeDays: defaultLogAgeDays,
		},
		Minio: MinioConfig{
			BucketPrefix:    defaultBucketPrefix,
			ObjectPrefix:    defaultObjectPrefix,
			TombstonePrefix: defaultTombstonePrefix,
		},
		Dify: DifyConfig{
			BaseURL:           defaultDifyBaseURL,
			AppUser:           defaultDifyAppUser,
			IndexingTechnique: defaultDifyIndexing,
			Timeout:           defaultDifyTimeout,
		},
		Ingest: IngestConfig{
			Workers:         defaultIngestWorkers,
			QueueSize:       defaultIngestQueue,
			AutoDify:        defaultAutoDify,
			MergeMaxChars:   defaultMergeChars,
			MergeMaxSeconds: defaultMergeSeconds,
		},
	}
}
