// Package dify is an HTTP client for the Dify REST API (knowledge dataset
// CRUD, retrieval, chat, indexing status) plus the document naming and body
// builders used to keep dataset documents joinable with local library items.
package dify

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration problems caught before any HTTP call.
// Use errors.Is(err, dify.ErrMissingServiceKey) to check.
var (
	ErrMissingServiceKey = errors.New("Missing DIFY_SERVICE_API_KEY")
	ErrMissingAppKey     = errors.New("Missing DIFY_APP_API_KEY")
	ErrMissingDataset    = errors.New("Missing Dify dataset id (set DIFY_DATASET_ID or a per-call dataset id)")
)

// maxBodyPreview bounds how many response-body bytes are carried in errors.
const maxBodyPreview = 2000

// Error is a Dify API failure: a >=400 status with a bounded body preview.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("Dify API error %d: %s", e.StatusCode, e.Body)
}

// bodyPreview truncates raw to maxBodyPreview bytes for error messages.
func bodyPreview(raw []byte) string {
	if len(raw) > maxBodyPreview {
		raw = raw[:maxBodyPreview]
	}

	return string(raw)
}
