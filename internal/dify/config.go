package dify

import (
	"strings"
	"time"

	"github.com/pxh52013145/VNote/internal/config"
)

// Resolution defaults, shared with the file/env layer.
const (
	defaultBaseURL           = "http://localhost"
	defaultAppUser           = "bilinote"
	defaultIndexingTechnique = "high_quality"
	defaultTimeout           = 60 * time.Second

	// DefaultDocLanguage is the doc_language sent with create/update-by-text
	// when the caller does not override it.
	DefaultDocLanguage = "Chinese Simplified"
)

// Config is the fully resolved connection configuration for one RAG profile:
// file/env defaults overlaid with the active profile's non-empty fields.
// Construct via FromAppConfig (or a profile registry) and treat as immutable.
type Config struct {
	BaseURL             string
	DatasetID           string
	NoteDatasetID       string
	TranscriptDatasetID string
	ServiceAPIKey       string
	AppAPIKey           string
	AppUser             string
	IndexingTechnique   string
	Timeout             time.Duration
}

// FromAppConfig resolves a Config from the file/env layer settings.
func FromAppConfig(c config.DifyConfig) Config {
	return Config{
		BaseURL:             c.BaseURL,
		DatasetID:           c.DatasetID,
		NoteDatasetID:       c.NoteDatasetID,
		TranscriptDatasetID: c.TranscriptDatasetID,
		ServiceAPIKey:       c.ServiceAPIKey,
		AppAPIKey:           c.AppAPIKey,
		AppUser:             c.AppUser,
		IndexingTechnique:   c.IndexingTechnique,
		Timeout:             c.TimeoutDuration(),
	}.Normalized()
}

// Normalized trims every field, fills blank fields with the defaults, and
// normalizes the three dataset ids. Calling it twice is a no-op.
func (c Config) Normalized() Config {
	out := c

	out.BaseURL = strings.TrimSpace(out.BaseURL)
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}

	out.DatasetID = NormalizeDatasetID(out.DatasetID)
	out.NoteDatasetID = NormalizeDatasetID(out.NoteDatasetID)
	out.TranscriptDatasetID = NormalizeDatasetID(out.TranscriptDatasetID)

	out.ServiceAPIKey = strings.TrimSpace(out.ServiceAPIKey)
	out.AppAPIKey = strings.TrimSpace(out.AppAPIKey)

	out.AppUser = strings.TrimSpace(out.AppUser)
	if out.AppUser == "" {
		out.AppUser = defaultAppUser
	}

	out.IndexingTechnique = strings.TrimSpace(out.IndexingTechnique)
	if out.IndexingTechnique == "" {
		out.IndexingTechnique = defaultIndexingTechnique
	}

	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}

	return out
}

// V1BaseURL returns the base URL with a single "/v1" suffix.
func (c Config) V1BaseURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}

	return base + "/v1"
}

// NoteDataset returns the dataset id used for note documents, falling back
// to the shared dataset id.
func (c Config) NoteDataset() string {
	if ds := strings.TrimSpace(c.NoteDatasetID); ds != "" {
		return ds
	}

	return strings.TrimSpace(c.DatasetID)
}

// TranscriptDataset returns the dataset id used for transcript documents,
// falling back to the shared dataset id.
func (c Config) TranscriptDataset() string {
	if ds := strings.TrimSpace(c.TranscriptDatasetID); ds != "" {
		return ds
	}

	return strings.TrimSpace(c.DatasetID)
}

// NormalizeDatasetID accepts ids copied from dataset URLs or paths, such as
// "datasets/<uuid>" or "/datasets/<uuid>", and reduces them to the bare id.
func NormalizeDatasetID(v string) string {
	id := strings.TrimLeft(strings.TrimSpace(v), "/")
	if rest, ok := strings.CutPrefix(id, "datasets/"); ok {
		id = strings.TrimSpace(rest)
	}

	return id
}
