package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/identity"
	"github.com/pxh52013145/VNote/internal/objstore"
)

// Pull downloads an item's bundle and materializes it into the local
// library. Without Overwrite, files that already exist non-empty are left
// alone, and a pull that would change nothing reports a conflict. Pulls of
// tombstoned items are refused so deletions don't resurrect by accident.
func (e *Engine) Pull(ctx context.Context, req PullRequest) (*PullResult, error) {
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
	objectKey := store.BundleKey(syncID)

	// Probe errors don't block here; the download decides.
	if st, err := store.Stat(ctx, bucket, store.TombstoneKey(syncID)); err == nil && st != nil {
		return nil, gonef("Remote item is deleted (tombstone)")
	}

	advertisedSHA := ""
	if st, err := store.Stat(ctx, bucket, objectKey); err == nil && st != nil {
		advertisedSHA = objstore.MetaValue(st.Metadata, "bundle-sha256")
	}

	data, err := store.GetBytes(ctx, bucket, objectKey)
	if err != nil {
		return nil, remoteFailure(err)
	}

	if advertisedSHA != "" && bundle.SHA256Hex(data) != advertisedSHA {
		return nil, integrityf("Bundle sha256 mismatch (download corrupted)")
	}

	// Reuse the existing local directory for this identity: pulling into a
	// second task id would duplicate the item. Defaults to the sync id.
	taskID := syncID
	if items, err := e.cfg.Library.Scan(); err == nil {
		for i := range items {
			if items[i].SourceKey == sourceKey {
				taskID = items[i].TaskID
				break
			}
		}
	}

	b, err := bundle.Parse(data)
	if err != nil {
		return nil, integrityf("Invalid bundle zip: %v", err)
	}

	if b.Meta.SyncID != "" && b.Meta.SyncID != syncID {
		return nil, integrityf("Bundle sync_id mismatch")
	}
	if b.Meta.SourceKey != "" && b.Meta.SourceKey != sourceKey {
		return nil, validationf("Bundle source_key mismatch")
	}

	var platform, videoID string
	var createdAtMs int64
	if p, v, ms, perr := identity.ParseSourceKey(sourceKey); perr == nil {
		platform, videoID, createdAtMs = p, v, ms
	} else {
		// Keys with blank parts may still carry a usable timestamp.
		createdAtMs = identity.CreatedAtMs(sourceKey)
	}
	audio := b.Audio
	if platform == "" || videoID == "" {
		if v := mapString(audio, "platform"); v != "" {
			platform = v
		}
		if v := mapString(audio, "video_id"); v != "" {
			videoID = v
		}
	}
	if createdAtMs <= 0 || platform == "" || videoID == "" {
		return nil, validationf("Invalid source_key (expected platform:video_id:created_at_ms)")
	}

	// Backfill the identity into the audio metadata so the pulled item
	// scans under the same source key it was fetched by.
	if mapString(audio, "platform") == "" {
		audio["platform"] = platform
	}
	if mapString(audio, "video_id") == "" {
		audio["video_id"] = videoID
	}

	if _, err := e.cfg.Library.EnsureTaskDir(taskID); err != nil {
		return nil, fmt.Errorf("creating task dir: %w", err)
	}
	paths := e.cfg.Library.NestedPaths(taskID)

	shouldWrite := func(path string) bool {
		return req.Overwrite || !fileNonEmpty(path)
	}

	wroteAny := false

	if strings.TrimSpace(b.NoteMarkdown) != "" && shouldWrite(paths.Markdown) {
		if err := e.cfg.Library.WriteMarkdown(taskID, b.NoteMarkdown); err != nil {
			return nil, fmt.Errorf("writing markdown: %w", err)
		}
		wroteAny = true
	}

	if len(b.Transcript) > 0 && shouldWrite(paths.Transcript) {
		if err := e.cfg.Library.WriteTranscript(taskID, b.Transcript); err != nil {
			return nil, fmt.Errorf("writing transcript: %w", err)
		}
		wroteAny = true
	}

	if len(audio) > 0 && shouldWrite(paths.Audio) {
		if err := e.cfg.Library.WriteAudio(taskID, audio); err != nil {
			return nil, fmt.Errorf("writing audio metadata: %w", err)
		}
		wroteAny = true
	}

	if _, err := e.cfg.Library.EnsureSyncMeta(taskID, platform, videoID, mapString(audio, "title"), createdAtMs); err != nil {
		e.logger.Warn("writing sync sidecar failed", "task_id", taskID, "error", err)
	}

	syncInfo := map[string]any{"source_key": sourceKey, "sync_id": syncID, "created_at_ms": createdAtMs}
	difyInfo := map[string]any{"base_url": dcfg.BaseURL}

	result := map[string]any{
		"markdown":   b.NoteMarkdown,
		"transcript": b.Transcript,
		"audio_meta": audio,
		"request":    b.Meta.Request,
		"sync":       syncInfo,
		"dify":       difyInfo,
	}
	if shouldWrite(paths.Result) {
		if err := e.cfg.Library.WriteResult(taskID, result); err != nil {
			return nil, fmt.Errorf("writing result: %w", err)
		}
		wroteAny = true
	}

	status := map[string]any{
		"status":        "SUCCESS",
		"progress":      100,
		"message":       "",
		"request":       b.Meta.Request,
		"sync":          syncInfo,
		"dify":          difyInfo,
		"dify_error":    nil,
		"dify_indexing": nil,
	}
	if shouldWrite(paths.Status) {
		if err := e.cfg.Library.ReplaceStatus(taskID, status); err != nil {
			return nil, fmt.Errorf("writing status: %w", err)
		}
		wroteAny = true
	}

	if !wroteAny && !req.Overwrite {
		return nil, conflictf("Local item already exists (set overwrite=true)")
	}

	e.logger.Info("bundle pulled into library",
		"source_key", sourceKey,
		"task_id", taskID,
		"bytes", len(data),
		"overwrite", req.Overwrite,
	)

	return &PullResult{
		TaskID:    taskID,
		SourceKey: sourceKey,
		SyncID:    syncID,
		Minio:     MinioInfo{Bucket: bucket, ObjectKey: objectKey},
	}, nil
}
