package sync

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/identity"
	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/note"
)

// Copy duplicates an item under a fresh identity: same platform and video
// id, new timestamp. The content comes from the local library or from the
// remote bundle, the new bundle is uploaded, local artifacts are written
// under the new sync id, and RAG documents are optionally created (never
// updated; a copy must not steal the source's documents).
func (e *Engine) Copy(ctx context.Context, req CopyRequest) (*CopyResult, error) {
	sourceKey := strings.TrimSpace(req.SourceKey)
	if sourceKey == "" {
		return nil, validationf("Missing source_key")
	}

	platform, videoID, _, err := identity.ParseSourceKey(sourceKey)
	if err != nil {
		return nil, validationf("Invalid source_key (expected platform:video_id:created_at_ms)")
	}

	side := strings.ToLower(strings.TrimSpace(req.FromSide))
	if side == "" {
		side = "local"
	}
	if side != "local" && side != "remote" {
		return nil, validationf("Invalid from_side (expected local|remote)")
	}

	profileName, dcfg := e.activeDify()

	var (
		store        ObjectStore
		bucket       string
		audio        map[string]any
		transcript   map[string]any
		noteMarkdown string
		requestMeta  map[string]any
	)

	switch side {
	case "local":
		var local *library.Item
		if items, err := e.cfg.Library.Scan(); err == nil {
			for i := range items {
				if items[i].SourceKey == sourceKey {
					local = &items[i]
					break
				}
			}
		}
		if local == nil {
			return nil, notFoundf("Local item not found for source_key")
		}

		p := e.cfg.Library.Payloads(local)
		audio, transcript, noteMarkdown = p.Audio, p.Transcript, p.NoteMarkdown
		requestMeta = e.cfg.Library.RequestMeta(local)
		if audio == nil {
			return nil, validationf("Missing local audio metadata")
		}

	case "remote":
		srcSyncID := identity.ComputeSyncID(sourceKey)

		store, bucket, err = e.connect(profileName)
		if err != nil {
			return nil, err
		}

		data, err := store.GetBytes(ctx, bucket, store.BundleKey(srcSyncID))
		if err != nil {
			return nil, remoteFailure(err)
		}

		b, err := bundle.Parse(data)
		if err != nil {
			return nil, integrityf("Invalid remote bundle zip: %v", err)
		}

		audio, transcript, noteMarkdown = b.Audio, b.Transcript, b.NoteMarkdown
		requestMeta = b.Meta.Request
	}

	if req.IncludeNote && strings.TrimSpace(noteMarkdown) == "" {
		return nil, validationf("Missing note markdown")
	}
	if req.IncludeTranscript && transcript == nil {
		return nil, validationf("Missing transcript")
	}

	createdAtMs := req.NewCreatedAtMs
	if createdAtMs <= 0 {
		createdAtMs = nowUnixMs()
	}

	if store == nil {
		store, bucket, err = e.connect(profileName)
		if err != nil {
			return nil, err
		}
	}

	// Probe for a free identity: millisecond collisions are possible when
	// copying the same item repeatedly, so bump the timestamp until both
	// the task directory and the object key are unused.
	var newSourceKey, newSyncID, objectKey string
	found := false
	for attempt := 0; attempt < 20; attempt++ {
		newSourceKey = identity.MakeSourceKey(platform, videoID, createdAtMs)
		newSyncID = identity.ComputeSyncID(newSourceKey)
		objectKey = store.BundleKey(newSyncID)

		_, statErr := os.Stat(e.cfg.Library.TaskDir(newSyncID))
		existsLocal := statErr == nil
		existsRemote := false
		if st, err := store.Stat(ctx, bucket, objectKey); err == nil && st != nil {
			existsRemote = true
		}

		if !existsLocal && !existsRemote {
			found = true
			break
		}
		createdAtMs++
	}
	if !found {
		return nil, remoteFailuref("Failed to generate unique copy id")
	}

	in := bundle.Input{
		SourceKey:     newSourceKey,
		SyncID:        newSyncID,
		Audio:         audio,
		MaxSRTChars:   e.cfg.MaxSRTChars,
		MaxSRTSeconds: e.cfg.MaxSRTSeconds,
	}
	if req.IncludeNote {
		in.NoteMarkdown = noteMarkdown
	}
	if req.IncludeTranscript {
		in.Transcript = transcript
	}
	if len(requestMeta) > 0 {
		in.ExtraMeta = map[string]any{"request": requestMeta}
	}

	data, err := bundle.Build(in)
	if err != nil {
		return nil, fmt.Errorf("building bundle: %w", err)
	}

	bundleSHA := bundle.SHA256Hex(data)
	noteSHA, transcriptSHA := contentHashes(data)

	metadata := map[string]string{
		"bundle-sha256": bundleSHA,
		"sync-id":       newSyncID,
		"source-key":    newSourceKey,
	}
	if noteSHA != "" {
		metadata["note-sha256"] = noteSHA
	}
	if transcriptSHA != "" {
		metadata["transcript-sha256"] = transcriptSHA
	}

	if err := store.PutBytes(ctx, bucket, objectKey, data, "application/zip", metadata); err != nil {
		return nil, remoteFailure(err)
	}

	// Local copy files for immediate use. The copy was just minted, so
	// writes are unconditional.
	if _, err := e.cfg.Library.EnsureTaskDir(newSyncID); err != nil {
		return nil, fmt.Errorf("creating task dir: %w", err)
	}

	strippedMarkdown := strings.TrimLeft(noteMarkdown, "\uFEFF")
	if req.IncludeNote {
		if err := e.cfg.Library.WriteMarkdown(newSyncID, noteMarkdown); err != nil {
			return nil, fmt.Errorf("writing markdown: %w", err)
		}
	}
	if req.IncludeTranscript {
		if err := e.cfg.Library.WriteTranscript(newSyncID, orEmptyMap(transcript)); err != nil {
			return nil, fmt.Errorf("writing transcript: %w", err)
		}
	}
	if err := e.cfg.Library.WriteAudio(newSyncID, orEmptyMap(audio)); err != nil {
		return nil, fmt.Errorf("writing audio metadata: %w", err)
	}

	if _, err := e.cfg.Library.EnsureSyncMeta(newSyncID, platform, videoID, mapString(audio, "title"), createdAtMs); err != nil {
		e.logger.Warn("writing sync sidecar failed", "task_id", newSyncID, "error", err)
	}

	syncInfo := map[string]any{"source_key": newSourceKey, "sync_id": newSyncID, "created_at_ms": createdAtMs}
	difyInfo := map[string]any{"base_url": dcfg.BaseURL}

	resultMarkdown := ""
	if req.IncludeNote {
		resultMarkdown = strippedMarkdown
	}
	resultTranscript := map[string]any{}
	if req.IncludeTranscript {
		resultTranscript = transcript
	}

	result := map[string]any{
		"markdown":   resultMarkdown,
		"transcript": resultTranscript,
		"audio_meta": audio,
		"request":    requestMeta,
		"sync":       syncInfo,
		"dify":       difyInfo,
	}
	if err := e.cfg.Library.WriteResult(newSyncID, result); err != nil {
		return nil, fmt.Errorf("writing result: %w", err)
	}

	status := map[string]any{
		"status":        "SUCCESS",
		"progress":      100,
		"message":       "",
		"request":       requestMeta,
		"sync":          syncInfo,
		"dify":          difyInfo,
		"dify_error":    nil,
		"dify_indexing": nil,
	}
	if err := e.cfg.Library.ReplaceStatus(newSyncID, status); err != nil {
		return nil, fmt.Errorf("writing status: %w", err)
	}

	e.logger.Info("item copied",
		"source_key", sourceKey,
		"new_source_key", newSourceKey,
		"from_side", side,
		"object_key", objectKey,
	)

	res := &CopyResult{
		TaskID:    newSyncID,
		SourceKey: newSourceKey,
		SyncID:    newSyncID,
		Minio:     MinioInfo{Bucket: bucket, ObjectKey: objectKey, BundleSHA256: bundleSHA},
	}

	difyErrors := map[string]string{}
	if req.CreateDifyDocs && dcfg.ServiceAPIKey != "" && (dcfg.NoteDataset() != "" || dcfg.TranscriptDataset() != "") {
		kc := e.cfg.NewKnowledge(dcfg)
		audioMeta := note.AudioMetaFromMap(audio)
		baseName := dify.DocumentName(*audioMeta, platform, createdAtMs)

		if req.IncludeNote {
			if ds := dcfg.NoteDataset(); ds != "" {
				docName := baseName + dify.NoteDocSuffix
				text := dify.NoteDocumentText(*audioMeta, platform, "", noteMarkdown)
				if resp, err := kc.CreateDocumentByText(ctx, ds, docName, text, ""); err != nil {
					difyErrors["note"] = err.Error()
					e.logger.Warn("note document create failed", "source_key", newSourceKey, "error", err)
				} else {
					res.Dify.Note = &DocInfo{DatasetID: ds, DocumentID: resp.Document.ID, Batch: resp.Batch, Name: docName}
				}
			}
		}

		if req.IncludeTranscript {
			if ds := dcfg.TranscriptDataset(); ds != "" {
				docName := baseName + dify.TranscriptDocSuffix
				text := dify.TranscriptDocumentText(*audioMeta, platform, "", note.TranscriptFromMap(transcript), e.cfg.MaxSRTChars, e.cfg.MaxSRTSeconds)
				if resp, err := kc.CreateDocumentByText(ctx, ds, docName, text, ""); err != nil {
					difyErrors["transcript"] = err.Error()
					e.logger.Warn("transcript document create failed", "source_key", newSourceKey, "error", err)
				} else {
					res.Dify.Transcript = &DocInfo{DatasetID: ds, DocumentID: resp.Document.ID, Batch: resp.Batch, Name: docName}
				}
			}
		}
	}

	res.DifyError = encodeDifyErrors(difyErrors)

	return res, nil
}

// orEmptyMap substitutes an empty object for nil so JSON artifacts always
// hold an object, matching what bundle extraction produces.
func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
