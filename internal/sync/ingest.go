package sync

import (
	"context"
	"strings"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/note"
)

// IngestResult reports the post-generate automation outcome. Minio is nil
// when the bundle upload was disabled or failed; DifyError carries the
// per-side RAG failures (or a plain message when the item could not be
// loaded at all).
type IngestResult struct {
	Minio     *MinioInfo `json:"minio,omitempty"`
	Dify      SideDocs   `json:"dify"`
	DifyError string     `json:"dify_error,omitempty"`
}

// PublishGenerated runs the post-generate automation for a freshly
// completed task: upload its bundle to the object store when uploadBundle
// is set, and create RAG documents for its note and transcript. autoDify
// nil resolves from the active profile: ingestion is enabled when a
// service key plus at least one dataset id are configured.
//
// The task already succeeded locally, so nothing here fails it: object
// store trouble is logged and dropped, RAG trouble lands in the returned
// DifyError and the task's status document under dify_error.
func (e *Engine) PublishGenerated(ctx context.Context, taskID string, uploadBundle bool, autoDify *bool) *IngestResult {
	res := &IngestResult{}

	profileName, dcfg := e.activeDify()

	doDify := boolValue(autoDify)
	if autoDify == nil {
		doDify = dcfg.ServiceAPIKey != "" && (dcfg.NoteDataset() != "" || dcfg.TranscriptDataset() != "")
	}

	if !uploadBundle && !doDify {
		return res
	}

	local, err := e.cfg.Library.Load(taskID)
	if err != nil {
		e.logger.Warn("post-generate ingest skipped, item unreadable", "task_id", taskID, "error", err)
		res.DifyError = "Local item not found: " + taskID
		return res
	}
	if local == nil {
		// The task directory vanished between saving and publishing.
		// Writing a status patch would resurrect it, so only report.
		e.logger.Warn("post-generate ingest skipped, item missing", "task_id", taskID)
		res.DifyError = "Local item not found: " + taskID
		return res
	}

	p := e.cfg.Library.Payloads(local)

	if uploadBundle {
		if info, err := e.uploadGeneratedBundle(ctx, profileName, local, p); err != nil {
			e.logger.Warn("auto bundle upload failed", "task_id", taskID, "error", err)
		} else if info != nil {
			res.Minio = info
		}
	}

	if doDify {
		e.ingestGeneratedDocs(ctx, dcfg, local, p, res)
	}

	return res
}

// uploadGeneratedBundle builds and uploads the item's bundle. A missing
// object store configuration skips the upload silently (nil, nil); any
// other failure is returned for logging.
func (e *Engine) uploadGeneratedBundle(ctx context.Context, profileName string, local *library.Item, p *library.Payloads) (*MinioInfo, error) {
	store, bucket, err := e.connect(profileName)
	if err != nil {
		if KindOf(err) == KindRemoteConfig {
			return nil, nil
		}

		return nil, err
	}

	in := bundle.Input{
		SourceKey:     local.SourceKey,
		SyncID:        local.SyncID,
		NoteMarkdown:  p.NoteMarkdown,
		Audio:         p.Audio,
		Transcript:    p.Transcript,
		MaxSRTChars:   e.cfg.MaxSRTChars,
		MaxSRTSeconds: e.cfg.MaxSRTSeconds,
	}
	if reqMeta := e.cfg.Library.RequestMeta(local); len(reqMeta) > 0 {
		in.ExtraMeta = map[string]any{"request": reqMeta}
	}

	data, err := bundle.Build(in)
	if err != nil {
		return nil, err
	}

	bundleSHA := bundle.SHA256Hex(data)
	noteSHA, transcriptSHA := contentHashes(data)
	metadata := map[string]string{
		"bundle-sha256": bundleSHA,
		"sync-id":       local.SyncID,
		"source-key":    local.SourceKey,
	}
	if noteSHA != "" {
		metadata["note-sha256"] = noteSHA
	}
	if transcriptSHA != "" {
		metadata["transcript-sha256"] = transcriptSHA
	}

	objectKey := store.BundleKey(local.SyncID)
	if err := store.PutBytes(ctx, bucket, objectKey, data, "application/zip", metadata); err != nil {
		return nil, err
	}

	e.logger.Info("generated bundle uploaded",
		"source_key", local.SourceKey,
		"object_key", objectKey,
		"bytes", len(data),
	)

	return &MinioInfo{Bucket: bucket, ObjectKey: objectKey, BundleSHA256: bundleSHA}, nil
}

// ingestGeneratedDocs creates the note and transcript RAG documents for a
// generated item and merges the outcome into its result and status files.
// Unlike push this never updates an existing document: each generate run
// carries a fresh created_at_ms, so the names cannot collide.
func (e *Engine) ingestGeneratedDocs(ctx context.Context, dcfg dify.Config, local *library.Item, p *library.Payloads, res *IngestResult) {
	difyErrors := map[string]string{}

	if dcfg.ServiceAPIKey == "" {
		difyErrors["dify"] = "Missing DIFY_SERVICE_API_KEY"
		e.mergeDifyOutcome(local, nil, difyErrors, res)
		return
	}

	difyInfo := map[string]any{
		"base_url":   dcfg.BaseURL,
		"note":       nil,
		"transcript": nil,
	}

	// Early marker so a status poll shows the upload in progress.
	e.mergeTaskFiles(local, map[string]any{"dify": difyInfo})

	kc := e.cfg.NewKnowledge(dcfg)
	audioMeta := note.AudioMetaFromMap(p.Audio)
	baseName := dify.DocumentName(*audioMeta, local.Platform, local.CreatedAtMs)
	sourceURL := mapString(e.cfg.Library.RequestMeta(local), "video_url")

	if ds := dcfg.NoteDataset(); ds == "" {
		difyErrors["note"] = "Missing note dataset id"
	} else if strings.TrimSpace(p.NoteMarkdown) == "" {
		difyErrors["note"] = "Missing note markdown"
	} else {
		docName := baseName + dify.NoteDocSuffix
		text := dify.NoteDocumentText(*audioMeta, local.Platform, sourceURL, p.NoteMarkdown)
		if resp, err := kc.CreateDocumentByText(ctx, ds, docName, text, ""); err != nil {
			difyErrors["note"] = err.Error()
			e.logger.Warn("note document create failed", "task_id", local.TaskID, "error", err)
		} else {
			res.Dify.Note = &DocInfo{DatasetID: ds, DocumentID: resp.Document.ID, Batch: resp.Batch, Name: docName}
			difyInfo["note"] = docInfoMap(res.Dify.Note)
		}
	}

	if ds := dcfg.TranscriptDataset(); ds == "" {
		difyErrors["transcript"] = "Missing transcript dataset id"
	} else {
		docName := baseName + dify.TranscriptDocSuffix
		text := dify.TranscriptDocumentText(*audioMeta, local.Platform, sourceURL, note.TranscriptFromMap(p.Transcript), e.cfg.MaxSRTChars, e.cfg.MaxSRTSeconds)
		if resp, err := kc.CreateDocumentByText(ctx, ds, docName, text, ""); err != nil {
			difyErrors["transcript"] = err.Error()
			e.logger.Warn("transcript document create failed", "task_id", local.TaskID, "error", err)
		} else {
			res.Dify.Transcript = &DocInfo{DatasetID: ds, DocumentID: resp.Document.ID, Batch: resp.Batch, Name: docName}
			difyInfo["transcript"] = docInfoMap(res.Dify.Transcript)
		}
	}

	e.mergeDifyOutcome(local, difyInfo, difyErrors, res)
}

// mergeDifyOutcome writes the final dify map into the result and status
// files and, when sides failed, the encoded dify_error into the status.
func (e *Engine) mergeDifyOutcome(local *library.Item, difyInfo map[string]any, difyErrors map[string]string, res *IngestResult) {
	patch := map[string]any{}
	if difyInfo != nil {
		patch["dify"] = difyInfo
	}

	res.DifyError = encodeDifyErrors(difyErrors)
	if res.DifyError != "" {
		e.logger.Warn("RAG ingestion recorded failures", "task_id", local.TaskID, "dify_error", res.DifyError)
	}

	if len(patch) > 0 {
		e.mergeTaskFiles(local, patch)
	}
	if res.DifyError != "" {
		e.mergeStatus(local, map[string]any{"dify_error": res.DifyError})
	}
}

// mergeTaskFiles patches both the result and status documents of a task.
func (e *Engine) mergeTaskFiles(local *library.Item, patch map[string]any) {
	if path, err := e.cfg.Library.ResultPath(local.TaskID); err == nil {
		if err := e.cfg.Library.MergeJSON(path, patch); err != nil {
			e.logger.Warn("merging result document failed", "task_id", local.TaskID, "error", err)
		}
	}

	e.mergeStatus(local, patch)
}

func (e *Engine) mergeStatus(local *library.Item, patch map[string]any) {
	path, err := e.cfg.Library.StatusPath(local.TaskID)
	if err != nil {
		return
	}

	if err := e.cfg.Library.MergeJSON(path, patch); err != nil {
		e.logger.Warn("merging status document failed", "task_id", local.TaskID, "error", err)
	}
}

// docInfoMap renders a DocInfo the way the status document stores it.
func docInfoMap(d *DocInfo) map[string]any {
	return map[string]any{
		"dataset_id":  d.DatasetID,
		"document_id": d.DocumentID,
		"batch":       d.Batch,
		"name":        d.Name,
	}
}
