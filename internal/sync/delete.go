package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pxh52013145/VNote/internal/identity"
)

// tombstone is the JSON marker written in place of a deleted item. Other
// devices treat its presence as the deletion signal during scans and pulls;
// the bundle itself is left behind for forensics and restores.
type tombstone struct {
	Version     int    `json:"version"`
	SourceKey   string `json:"source_key"`
	SyncID      string `json:"sync_id"`
	DeletedAtMs int64  `json:"deleted_at_ms"`
	Profile     string `json:"profile"`
}

// DeleteRemote marks an item deleted in the object store and optionally
// deletes its RAG documents. The tombstone write is the commit point: RAG
// failures afterwards land in the result's DifyError. Local files are never
// touched.
func (e *Engine) DeleteRemote(ctx context.Context, req DeleteRemoteRequest) (*DeleteRemoteResult, error) {
	sourceKey := strings.TrimSpace(req.SourceKey)
	if sourceKey == "" {
		return nil, validationf("Missing source_key")
	}

	syncID := identity.ComputeSyncID(sourceKey)
	profileName, dcfg := e.activeDify()

	store, bucket, err := e.connect(profileName)
	if err != nil {
		return nil, err
	}

	tombKey := store.TombstoneKey(syncID)
	marker, err := json.MarshalIndent(tombstone{
		Version:     1,
		SourceKey:   sourceKey,
		SyncID:      syncID,
		DeletedAtMs: nowUnixMs(),
		Profile:     profileName,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tombstone: %w", err)
	}

	if err := store.PutBytes(ctx, bucket, tombKey, marker, "application/json", nil); err != nil {
		return nil, remoteFailure(err)
	}

	e.logger.Info("tombstone written", "source_key", sourceKey, "tombstone_key", tombKey)

	res := &DeleteRemoteResult{
		SourceKey: sourceKey,
		SyncID:    syncID,
		Minio:     MinioInfo{Bucket: bucket, TombstoneKey: tombKey},
	}

	difyErrors := map[string]string{}
	if req.DeleteDify && dcfg.ServiceAPIKey != "" && (dcfg.NoteDataset() != "" || dcfg.TranscriptDataset() != "") {
		kc := e.cfg.NewKnowledge(dcfg)

		if noteDoc := strings.TrimSpace(req.DifyNoteDocumentID); noteDoc != "" {
			if ds := dcfg.NoteDataset(); ds != "" {
				if err := kc.DeleteDocument(ctx, ds, noteDoc); err != nil {
					difyErrors["note"] = err.Error()
					e.logger.Warn("note document delete failed", "document_id", noteDoc, "error", err)
				} else {
					res.Dify.Note = &DocInfo{DatasetID: ds, DocumentID: noteDoc}
				}
			}
		}

		if trDoc := strings.TrimSpace(req.DifyTranscriptDocumentID); trDoc != "" {
			if ds := dcfg.TranscriptDataset(); ds != "" {
				if err := kc.DeleteDocument(ctx, ds, trDoc); err != nil {
					difyErrors["transcript"] = err.Error()
					e.logger.Warn("transcript document delete failed", "document_id", trDoc, "error", err)
				} else {
					res.Dify.Transcript = &DocInfo{DatasetID: ds, DocumentID: trDoc}
				}
			}
		}
	}

	res.DifyError = encodeDifyErrors(difyErrors)

	return res, nil
}
