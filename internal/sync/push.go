package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/note"
	"github.com/pxh52013145/VNote/internal/objstore"
)

// Push uploads a local item's bundle to the object store and, when
// requested, upserts its RAG documents by name. The bundle upload is the
// commit point: RAG failures after it land in the result's DifyError, not
// in the returned error. Pushing over a tombstone restores the item.
func (e *Engine) Push(ctx context.Context, req PushRequest) (*PushResult, error) {
	itemID := strings.TrimSpace(req.ItemID)
	if itemID == "" {
		return nil, validationf("Missing item_id")
	}

	profileName, dcfg := e.activeDify()

	local, err := e.cfg.Library.Load(itemID)
	if err != nil {
		return nil, fmt.Errorf("loading local item: %w", err)
	}
	if local == nil {
		return nil, notFoundf("Local item not found: %s", itemID)
	}

	p := e.cfg.Library.Payloads(local)
	if p.Audio == nil {
		return nil, validationf("Missing local audio metadata")
	}
	if req.IncludeNote && strings.TrimSpace(p.NoteMarkdown) == "" {
		return nil, validationf("Missing local note markdown")
	}
	if req.IncludeTranscript && p.Transcript == nil {
		return nil, validationf("Missing local transcript")
	}

	sourceKey := local.SourceKey
	syncID := local.SyncID

	store, bucket, err := e.connect(profileName)
	if err != nil {
		return nil, err
	}
	objectKey := store.BundleKey(syncID)

	in := bundle.Input{
		SourceKey:     sourceKey,
		SyncID:        syncID,
		Audio:         p.Audio,
		MaxSRTChars:   e.cfg.MaxSRTChars,
		MaxSRTSeconds: e.cfg.MaxSRTSeconds,
	}
	if req.IncludeNote {
		in.NoteMarkdown = p.NoteMarkdown
	}
	if req.IncludeTranscript {
		in.Transcript = p.Transcript
	}
	if reqMeta := e.cfg.Library.RequestMeta(local); len(reqMeta) > 0 {
		in.ExtraMeta = map[string]any{"request": reqMeta}
	}

	data, err := bundle.Build(in)
	if err != nil {
		return nil, fmt.Errorf("building bundle: %w", err)
	}

	bundleSHA := bundle.SHA256Hex(data)
	noteSHA, transcriptSHA := contentHashes(data)

	metadata := map[string]string{
		"bundle-sha256": bundleSHA,
		"sync-id":       syncID,
		"source-key":    sourceKey,
	}
	if noteSHA != "" {
		metadata["note-sha256"] = noteSHA
	}
	if transcriptSHA != "" {
		metadata["transcript-sha256"] = transcriptSHA
	}

	// Pushing over a tombstone is a restore: drop the marker first so the
	// item stops classifying as deleted. Best-effort; the upload decides.
	tombKey := store.TombstoneKey(syncID)
	if st, err := store.Stat(ctx, bucket, tombKey); err == nil && st != nil {
		if err := store.Remove(ctx, bucket, tombKey); err != nil {
			e.logger.Warn("removing tombstone before push failed", "tombstone_key", tombKey, "error", err)
		} else {
			e.logger.Info("tombstone removed, item restored", "source_key", sourceKey)
		}
	}

	// Idempotent upload: a matching remote digest skips the transfer.
	existingSHA := ""
	if st, err := store.Stat(ctx, bucket, objectKey); err == nil && st != nil {
		existingSHA = objstore.MetaValue(st.Metadata, "bundle-sha256")
	}
	if existingSHA == bundleSHA {
		e.logger.Debug("bundle unchanged, upload skipped", "source_key", sourceKey, "bundle_sha256", bundleSHA)
	} else {
		if err := store.PutBytes(ctx, bucket, objectKey, data, "application/zip", metadata); err != nil {
			return nil, remoteFailure(err)
		}
		e.logger.Info("bundle uploaded",
			"source_key", sourceKey,
			"object_key", objectKey,
			"bytes", len(data),
			"bundle_sha256", bundleSHA,
		)
	}

	res := &PushResult{
		SourceKey: sourceKey,
		SyncID:    syncID,
		Minio:     MinioInfo{Bucket: bucket, ObjectKey: objectKey, BundleSHA256: bundleSHA},
	}

	if !req.UpdateDify {
		return res, nil
	}

	if dcfg.ServiceAPIKey == "" {
		res.DifyError = encodeDifyErrors(map[string]string{"dify": "Missing DIFY_SERVICE_API_KEY"})
		return res, nil
	}

	kc := e.cfg.NewKnowledge(dcfg)
	audio := note.AudioMetaFromMap(p.Audio)
	baseName := dify.DocumentName(*audio, local.Platform, local.CreatedAtMs)
	difyErrors := map[string]string{}

	if req.IncludeNote {
		if ds := dcfg.NoteDataset(); ds != "" {
			docName := baseName + dify.NoteDocSuffix
			text := dify.NoteDocumentText(*audio, local.Platform, "", p.NoteMarkdown)
			info, err := upsertDocument(ctx, kc, ds, docName, text)
			if err != nil {
				difyErrors["note"] = err.Error()
				e.logger.Warn("note document upsert failed", "source_key", sourceKey, "error", err)
			} else {
				res.Dify.Note = info
			}
		}
	}

	if req.IncludeTranscript {
		if ds := dcfg.TranscriptDataset(); ds != "" {
			docName := baseName + dify.TranscriptDocSuffix
			transcript := note.TranscriptFromMap(p.Transcript)
			text := dify.TranscriptDocumentText(*audio, local.Platform, "", transcript, e.cfg.MaxSRTChars, e.cfg.MaxSRTSeconds)
			info, err := upsertDocument(ctx, kc, ds, docName, text)
			if err != nil {
				difyErrors["transcript"] = err.Error()
				e.logger.Warn("transcript document upsert failed", "source_key", sourceKey, "error", err)
			} else {
				res.Dify.Transcript = info
			}
		}
	}

	res.DifyError = encodeDifyErrors(difyErrors)

	return res, nil
}

// upsertDocument writes one dataset document by name: an existing document
// with the same name is updated in place, anything else creates a new one.
// The empty docLanguage defers to the client default.
func upsertDocument(ctx context.Context, kc Knowledge, datasetID, name, text string) (*DocInfo, error) {
	existing, err := kc.FindDocumentByName(ctx, datasetID, name)
	if err != nil {
		return nil, err
	}

	var resp *dify.DocumentResponse
	if existing != nil && existing.ID != "" {
		resp, err = kc.UpdateDocumentByText(ctx, datasetID, existing.ID, name, text, "")
	} else {
		resp, err = kc.CreateDocumentByText(ctx, datasetID, name, text, "")
	}
	if err != nil {
		return nil, err
	}

	info := &DocInfo{DatasetID: datasetID, Name: name}
	if resp != nil {
		info.DocumentID = resp.Document.ID
		info.Batch = resp.Batch
	}

	return info, nil
}
