package dify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pxh52013145/VNote/internal/config"
)

func TestNormalizeDatasetID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc-123", "abc-123"},
		{"  abc-123  ", "abc-123"},
		{"/abc-123", "abc-123"},
		{"datasets/abc-123", "abc-123"},
		{"/datasets/abc-123", "abc-123"},
		{"//datasets/ abc-123 ", "abc-123"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDatasetID(tt.in), "input %q", tt.in)
	}
}

func TestConfigNormalized_FillsDefaults(t *testing.T) {
	got := Config{}.Normalized()

	assert.Equal(t, "http://localhost", got.BaseURL)
	assert.Equal(t, "bilinote", got.AppUser)
	assert.Equal(t, "high_quality", got.IndexingTechnique)
	assert.Equal(t, 60*time.Second, got.Timeout)
}

func TestConfigNormalized_Idempotent(t *testing.T) {
	cfg := Config{
		BaseURL:             "  https://dify.example/  ",
		DatasetID:           "/datasets/ds-1",
		NoteDatasetID:       "ds-note",
		TranscriptDatasetID: " ds-tr ",
		ServiceAPIKey:       " svc ",
		AppAPIKey:           " app ",
		AppUser:             " carol ",
		IndexingTechnique:   " economy ",
		Timeout:             90 * time.Second,
	}

	once := cfg.Normalized()
	assert.Equal(t, once, once.Normalized())
	assert.Equal(t, "https://dify.example/", once.BaseURL)
	assert.Equal(t, "ds-1", once.DatasetID)
	assert.Equal(t, "svc", once.ServiceAPIKey)
	assert.Equal(t, "carol", once.AppUser)
	assert.Equal(t, "economy", once.IndexingTechnique)
}

func TestV1BaseURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost", "http://localhost/v1"},
		{"http://localhost/", "http://localhost/v1"},
		{"https://dify.example///", "https://dify.example/v1"},
		{"https://dify.example/v1", "https://dify.example/v1"},
		{"https://dify.example/v1/", "https://dify.example/v1"},
	}

	for _, tt := range tests {
		cfg := Config{BaseURL: tt.base}
		assert.Equal(t, tt.want, cfg.V1BaseURL(), "base %q", tt.base)
	}
}

func TestDatasetFallbacks(t *testing.T) {
	cfg := Config{DatasetID: "shared"}
	assert.Equal(t, "shared", cfg.NoteDataset())
	assert.Equal(t, "shared", cfg.TranscriptDataset())

	cfg.NoteDatasetID = "notes-only"
	assert.Equal(t, "notes-only", cfg.NoteDataset())
	assert.Equal(t, "shared", cfg.TranscriptDataset())

	cfg.TranscriptDatasetID = "tr-only"
	assert.Equal(t, "tr-only", cfg.TranscriptDataset())
}

func TestFromAppConfig(t *testing.T) {
	got := FromAppConfig(config.DifyConfig{
		BaseURL:             "https://dify.example",
		DatasetID:           "datasets/ds-1",
		NoteDatasetID:       "ds-note",
		TranscriptDatasetID: "ds-tr",
		ServiceAPIKey:       "svc",
		AppAPIKey:           "app",
		AppUser:             "",
		IndexingTechnique:   "",
		Timeout:             "90s",
	})

	assert.Equal(t, "https://dify.example", got.BaseURL)
	assert.Equal(t, "ds-1", got.DatasetID)
	assert.Equal(t, "ds-note", got.NoteDatasetID)
	assert.Equal(t, "ds-tr", got.TranscriptDatasetID)
	assert.Equal(t, "bilinote", got.AppUser)
	assert.Equal(t, "high_quality", got.IndexingTechnique)
	assert.Equal(t, 90*time.Second, got.Timeout)
}
