package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names. The MINIO_*, DIFY_*, and AUTO_* names are
// shared with the companion tooling and must not change.
const (
	EnvConfigDir = "RAGVIDEO_CONFIG_DIR"

	EnvMinioEndpoint        = "MINIO_ENDPOINT"
	EnvMinioAccessKey       = "MINIO_ACCESS_KEY"
	EnvMinioSecretKey       = "MINIO_SECRET_KEY"
	EnvMinioSecure          = "MINIO_SECURE"
	EnvMinioRegion          = "MINIO_REGION"
	EnvMinioBucketPrefix    = "MINIO_BUCKET_PREFIX"
	EnvMinioObjectPrefix    = "MINIO_OBJECT_PREFIX"
	EnvMinioTombstonePrefix = "MINIO_TOMBSTONE_PREFIX"

	EnvDifyBaseURL             = "DIFY_BASE_URL"
	EnvDifyDatasetID           = "DIFY_DATASET_ID"
	EnvDifyNoteDatasetID       = "DIFY_NOTE_DATASET_ID"
	EnvDifyTranscriptDatasetID = "DIFY_TRANSCRIPT_DATASET_ID"
	EnvDifyServiceAPIKey       = "DIFY_SERVICE_API_KEY"
	EnvDifyAppAPIKey           = "DIFY_APP_API_KEY"
	EnvDifyAppUser             = "DIFY_APP_USER"
	EnvDifyIndexingTechnique   = "DIFY_INDEXING_TECHNIQUE"
	EnvDifyTimeoutSeconds      = "DIFY_TIMEOUT_SECONDS"

	EnvAutoBundle      = "AUTO_MINIO_BUNDLE_ON_GENERATE"
	EnvAutoDify        = "AUTO_DIFY_INGEST_ON_GENERATE"
	EnvMergeMaxChars   = "RAG_TRANSCRIPT_MERGE_MAX_CHARS"
	EnvMergeMaxSeconds = "RAG_TRANSCRIPT_MERGE_MAX_SECONDS"
)

// EnvOverrides holds raw values read from environment variables. Empty
// strings mean "not set"; parsing and trimming happen in apply so the
// precedence chain stays in one place.
type EnvOverrides struct {
	ConfigDir string

	MinioEndpoint        string
	MinioAccessKey       string
	MinioSecretKey       string
	MinioSecure          string
	MinioRegion          string
	MinioBucketPrefix    string
	MinioObjectPrefix    string
	MinioTombstonePrefix string

	DifyBaseURL             string
	DifyDatasetID           string
	DifyNoteDatasetID       string
	DifyTranscriptDatasetID string
	DifyServiceAPIKey       string
	DifyAppAPIKey           string
	DifyAppUser             string
	DifyIndexingTechnique   string
	DifyTimeoutSeconds      string

	AutoBundle      string
	AutoDify        string
	MergeMaxChars   string
	MergeMaxSeconds string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the relevant
// fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigDir: os.Getenv(EnvConfigDir),

		MinioEndpoint:        os.Getenv(EnvMinioEndpoint),
		MinioAccessKey:       os.Getenv(EnvMinioAccessKey),
		MinioSecretKey:       os.Getenv(EnvMinioSecretKey),
		MinioSecure:          os.Getenv(EnvMinioSecure),
		MinioRegion:          os.Getenv(EnvMinioRegion),
		MinioBucketPrefix:    os.Getenv(EnvMinioBucketPrefix),
		MinioObjectPrefix:    os.Getenv(EnvMinioObjectPrefix),
		MinioTombstonePrefix: os.Getenv(EnvMinioTombstonePrefix),

		DifyBaseURL:             os.Getenv(EnvDifyBaseURL),
		DifyDatasetID:           os.Getenv(EnvDifyDatasetID),
		DifyNoteDatasetID:       os.Getenv(EnvDifyNoteDatasetID),
		DifyTranscriptDatasetID: os.Getenv(EnvDifyTranscriptDatasetID),
		DifyServiceAPIKey:       os.Getenv(EnvDifyServiceAPIKey),
		DifyAppAPIKey:           os.Getenv(EnvDifyAppAPIKey),
		DifyAppUser:             os.Getenv(EnvDifyAppUser),
		DifyIndexingTechnique:   os.Getenv(EnvDifyIndexingTechnique),
		DifyTimeoutSeconds:      os.Getenv(EnvDifyTimeoutSeconds),

		AutoBundle:      os.Getenv(EnvAutoBundle),
		AutoDify:        os.Getenv(EnvAutoDify),
		MergeMaxChars:   os.Getenv(EnvMergeMaxChars),
		MergeMaxSeconds: os.Getenv(EnvMergeMaxSeconds),
	}
}

// apply overlays non-empty environment values onto cfg.
func (e EnvOverrides) apply(cfg *Config) {
	setString(&cfg.Minio.Endpoint, e.MinioEndpoint)
	setString(&cfg.Minio.AccessKey, e.MinioAccessKey)
	setString(&cfg.Minio.SecretKey, e.MinioSecretKey)
	setString(&cfg.Minio.Region, e.MinioRegion)
	setString(&cfg.Minio.BucketPrefix, e.MinioBucketPrefix)
	setString(&cfg.Minio.ObjectPrefix, e.MinioObjectPrefix)
	setString(&cfg.Minio.TombstonePrefix, e.MinioTombstonePrefix)
	if v, ok := ParseBool(e.MinioSecure); ok {
		cfg.Minio.Secure = v
	}

	setString(&cfg.Dify.BaseURL, e.DifyBaseURL)
	setString(&cfg.Dify.DatasetID, e.DifyDatasetID)
	setString(&cfg.Dify.NoteDatasetID, e.DifyNoteDatasetID)
	setString(&cfg.Dify.TranscriptDatasetID, e.DifyTranscriptDatasetID)
	setString(&cfg.Dify.ServiceAPIKey, e.DifyServiceAPIKey)
	setString(&cfg.Dify.AppAPIKey, e.DifyAppAPIKey)
	setString(&cfg.Dify.AppUser, e.DifyAppUser)
	setString(&cfg.Dify.IndexingTechnique, e.DifyIndexingTechnique)
	if secs, err := strconv.Atoi(strings.TrimSpace(e.DifyTimeoutSeconds)); err == nil && secs > 0 {
		cfg.Dify.Timeout = strconv.Itoa(secs) + "s"
	}

	if v, ok := ParseBool(e.AutoBundle); ok {
		cfg.Ingest.AutoBundle = v
	}
	if raw := strings.TrimSpace(e.AutoDify); raw != "" {
		cfg.Ingest.AutoDify = raw
	}
	if n, err := strconv.Atoi(strings.TrimSpace(e.MergeMaxChars)); err == nil && n > 0 {
		cfg.Ingest.MergeMaxChars = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(e.MergeMaxSeconds)); err == nil && n > 0 {
		cfg.Ingest.MergeMaxSeconds = n
	}
}

func setString(dst *string, raw string) {
	if v := strings.TrimSpace(raw); v != "" {
		*dst = v
	}
}

// ParseBool maps the accepted truthy and falsy spellings to a bool.
// Anything else (including empty) reports ok=false and leaves the
// current value in place.
func ParseBool(raw string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// BoolOrAuto interprets a tri-state switch: explicit true/false, or nil
// for "auto" and for unrecognized input.
func BoolOrAuto(raw string) *bool {
	if strings.EqualFold(strings.TrimSpace(raw), "auto") {
		return nil
	}
	if v, ok := ParseBool(raw); ok {
		return &v
	}

	return nil
}
