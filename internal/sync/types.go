// Package sync implements three-way reconciliation between the local note
// library, the object store, and the RAG datasets, plus the four sync verbs
// (push, pull, copy, delete-remote) that move items between those sides.
//
// The object store is authoritative for cross-device content: every verb
// treats the bundle upload or tombstone write as its commit point, and RAG
// failures after that point are reported but never abort the operation.
package sync

// Status classifies one library item's position across the three sides.
type Status string

const (
	// StatusSynced means local and remote carry the same parts.
	StatusSynced Status = "SYNCED"

	// StatusLocalOnly means the item exists locally with no live remote
	// counterpart. Tombstoned items with surviving local files also report
	// LOCAL_ONLY so they can be pushed again.
	StatusLocalOnly Status = "LOCAL_ONLY"

	// StatusDifyOnly means RAG documents exist with no local files.
	StatusDifyOnly Status = "DIFY_ONLY"

	// StatusDifyOnlyNoBundle flags orphaned RAG documents: remote docs
	// exist, nothing local, and no bundle to pull from.
	StatusDifyOnlyNoBundle Status = "DIFY_ONLY_NO_BUNDLE"

	// StatusPartial means both sides exist but disagree on which parts
	// (note, transcript) each carries.
	StatusPartial Status = "PARTIAL"

	// StatusConflict means both sides look synced but a content hash
	// differs, so the copies have diverged.
	StatusConflict Status = "CONFLICT"

	// StatusDeleted means a tombstone exists and no local files remain.
	StatusDeleted Status = "DELETED"

	// StatusDifyOnlyLegacy marks remote documents whose name tag carries no
	// created_at_ms; they cannot be joined to anything.
	StatusDifyOnlyLegacy Status = "DIFY_ONLY_LEGACY"
)

// Item is one reconciled row: the joined view of an item across the local
// library, the RAG datasets, and the object store. Pointer booleans are
// tri-state; nil means the side was absent or the hint unavailable.
type Item struct {
	Status      Status `json:"status"`
	Title       string `json:"title"`
	Platform    string `json:"platform"`
	VideoID     string `json:"video_id"`
	CreatedAtMs int64  `json:"created_at_ms,omitempty"`
	SourceKey   string `json:"source_key,omitempty"`
	SyncID      string `json:"sync_id,omitempty"`

	LocalTaskID        string `json:"local_task_id,omitempty"`
	LocalHasNote       *bool  `json:"local_has_note,omitempty"`
	LocalHasTranscript *bool  `json:"local_has_transcript,omitempty"`

	DifyNoteDocumentID       string `json:"dify_note_document_id,omitempty"`
	DifyNoteName             string `json:"dify_note_name,omitempty"`
	DifyTranscriptDocumentID string `json:"dify_transcript_document_id,omitempty"`
	DifyTranscriptName       string `json:"dify_transcript_name,omitempty"`

	RemoteHasNote       *bool `json:"remote_has_note,omitempty"`
	RemoteHasTranscript *bool `json:"remote_has_transcript,omitempty"`

	BundleExists    *bool `json:"minio_bundle_exists,omitempty"`
	TombstoneExists *bool `json:"minio_tombstone_exists,omitempty"`

	BundleSHALocal      string `json:"bundle_sha256_local,omitempty"`
	BundleSHARemote     string `json:"bundle_sha256_remote,omitempty"`
	NoteSHALocal        string `json:"note_sha256_local,omitempty"`
	NoteSHARemote       string `json:"note_sha256_remote,omitempty"`
	TranscriptSHALocal  string `json:"transcript_sha256_local,omitempty"`
	TranscriptSHARemote string `json:"transcript_sha256_remote,omitempty"`
}

// ScanResult is the outcome of a full reconcile or a cached read: the
// resolved profile context plus the classified items, newest first.
type ScanResult struct {
	Profile             string `json:"profile"`
	DifyBaseURL         string `json:"dify_base_url"`
	NoteDatasetID       string `json:"note_dataset_id"`
	TranscriptDatasetID string `json:"transcript_dataset_id"`
	MinioBucket         string `json:"minio_bucket,omitempty"`
	LastScannedAt       string `json:"last_scanned_at,omitempty"`
	Items               []Item `json:"items"`
}

// PushRequest uploads a local item's bundle and optionally upserts its RAG
// documents. ItemID is the local task id.
type PushRequest struct {
	ItemID            string `json:"item_id"`
	IncludeTranscript bool   `json:"include_transcript"`
	IncludeNote       bool   `json:"include_note"`
	UpdateDify        bool   `json:"update_dify"`
}

// PullRequest materializes a bundle into the local library. With Overwrite
// false, existing non-empty local files are left untouched.
type PullRequest struct {
	SourceKey string `json:"source_key"`
	Overwrite bool   `json:"overwrite"`
}

// CopyRequest duplicates an item under a fresh identity. FromSide selects
// the content source: "local" reads the library, "remote" downloads the
// bundle. NewCreatedAtMs seeds the new identity timestamp; zero means now.
type CopyRequest struct {
	SourceKey         string `json:"source_key"`
	FromSide          string `json:"from_side"`
	CreateDifyDocs    bool   `json:"create_dify_docs"`
	IncludeTranscript bool   `json:"include_transcript"`
	IncludeNote       bool   `json:"include_note"`
	NewCreatedAtMs    int64  `json:"new_created_at_ms,omitempty"`
}

// DeleteRemoteRequest tombstones an item in the object store and optionally
// deletes its RAG documents by id.
type DeleteRemoteRequest struct {
	SourceKey                string `json:"source_key"`
	DeleteDify               bool   `json:"delete_dify"`
	DifyNoteDocumentID       string `json:"dify_note_document_id,omitempty"`
	DifyTranscriptDocumentID string `json:"dify_transcript_document_id,omitempty"`
}

// MinioInfo reports the object-store coordinates touched by a verb.
type MinioInfo struct {
	Bucket       string `json:"bucket"`
	ObjectKey    string `json:"object_key,omitempty"`
	TombstoneKey string `json:"tombstone_key,omitempty"`
	BundleSHA256 string `json:"bundle_sha256,omitempty"`
}

// DocInfo reports one RAG document touched by a verb.
type DocInfo struct {
	DatasetID  string `json:"dataset_id"`
	DocumentID string `json:"document_id,omitempty"`
	Batch      string `json:"batch,omitempty"`
	Name       string `json:"name,omitempty"`
}

// SideDocs carries the per-kind RAG outcomes. A nil side was not touched or
// failed; the failure lives in the accompanying dify_error.
type SideDocs struct {
	Note       *DocInfo `json:"note"`
	Transcript *DocInfo `json:"transcript"`
}

// PushResult is the push response payload. DifyError holds a JSON object of
// per-side failure messages; empty means every requested side succeeded.
type PushResult struct {
	SourceKey string    `json:"source_key"`
	SyncID    string    `json:"sync_id"`
	Minio     MinioInfo `json:"minio"`
	Dify      SideDocs  `json:"dify"`
	DifyError string    `json:"dify_error,omitempty"`
}

// PullResult is the pull response payload.
type PullResult struct {
	TaskID    string    `json:"task_id"`
	SourceKey string    `json:"source_key"`
	SyncID    string    `json:"sync_id"`
	Minio     MinioInfo `json:"minio"`
}

// CopyResult is the copy response payload. The new task id always equals the
// new sync id.
type CopyResult struct {
	TaskID    string    `json:"task_id"`
	SourceKey string    `json:"source_key"`
	SyncID    string    `json:"sync_id"`
	Minio     MinioInfo `json:"minio"`
	Dify      SideDocs  `json:"dify"`
	DifyError string    `json:"dify_error,omitempty"`
}

// DeleteRemoteResult is the delete-remote response payload.
type DeleteRemoteResult struct {
	SourceKey string    `json:"source_key"`
	SyncID    string    `json:"sync_id"`
	Minio     MinioInfo `json:"minio"`
	Dify      SideDocs  `json:"dify"`
	DifyError string    `json:"dify_error,omitempty"`
}

func boolPtr(b bool) *bool {
	return &b
}

func boolValue(p *bool) bool {
	return p != nil && *p
}
