package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/pxh52013145/VNote/internal/identity"
)

// syncMetaVersion is the sidecar document version.
const syncMetaVersion = 1

// SyncMeta pins the stable identity of a local note so created_at_ms,
// source_key and sync_id survive file touches and re-saves.
type SyncMeta struct {
	Version     int    `json:"version"`
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Platform    string `json:"platform"`
	VideoID     string `json:"video_id"`
	CreatedAtMs int64  `json:"created_at_ms"`
	SourceKey   string `json:"source_key"`
	SyncID      string `json:"sync_id"`
}

func (s *Store) syncMetaPath(taskID string) string {
	tid := strings.TrimSpace(taskID)
	taskDir := filepath.Join(s.root, tid)

	if isDir(taskDir) {
		return filepath.Join(taskDir, tid+syncMetaSuffix)
	}

	return filepath.Join(s.root, tid+syncMetaSuffix)
}

func readSyncMeta(path string) *SyncMeta {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var meta SyncMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}

	return &meta
}

// EnsureSyncMeta loads or creates the sync sidecar for a task. An existing
// sidecar with a complete identity is kept as-is unless preferMs demands a
// different identity, in which case the sidecar is rewritten. When no
// timestamp preference exists, the earliest artifact mtime is used so the
// identity reflects when the note was first produced; the wall clock is the
// last resort.
func (s *Store) EnsureSyncMeta(taskID, platform, videoID, title string, preferMs int64) (*SyncMeta, error) {
	tid := strings.TrimSpace(taskID)
	metaPath := s.syncMetaPath(tid)

	if existing := readSyncMeta(metaPath); existing != nil {
		hasIdentity := existing.SourceKey != "" && existing.SyncID != "" && existing.CreatedAtMs > 0

		if hasIdentity && preferMs <= 0 {
			return existing, nil
		}

		if hasIdentity && preferMs > 0 {
			expectedKey := identity.MakeSourceKey(platform, videoID, preferMs)
			expectedID := identity.ComputeSyncID(expectedKey)

			if existing.CreatedAtMs == preferMs &&
				existing.SourceKey == expectedKey &&
				existing.SyncID == expectedID &&
				existing.Platform == platform &&
				existing.VideoID == videoID &&
				existing.Title == title {
				return existing, nil
			}
		}
	}

	createdAtMs := preferMs
	if createdAtMs <= 0 {
		createdAtMs = s.earliestArtifactMs(tid)
	}

	sourceKey := identity.MakeSourceKey(platform, videoID, createdAtMs)

	meta := &SyncMeta{
		Version:     syncMetaVersion,
		TaskID:      tid,
		Title:       title,
		Platform:    platform,
		VideoID:     videoID,
		CreatedAtMs: createdAtMs,
		SourceKey:   sourceKey,
		SyncID:      identity.ComputeSyncID(sourceKey),
	}

	if err := s.writeSyncMeta(metaPath, meta); err != nil {
		return nil, err
	}

	return meta, nil
}

// earliestArtifactMs returns the minimum mtime (ms) across the status, result
// and markdown artifacts, or the current wall clock when none exist.
func (s *Store) earliestArtifactMs(taskID string) int64 {
	base := s.root
	if taskDir := filepath.Join(s.root, taskID); isDir(taskDir) {
		base = taskDir
	}

	candidates := []string{
		filepath.Join(base, taskID+statusSuffix),
		filepath.Join(base, taskID+resultSuffix),
		filepath.Join(base, taskID+markdownSuffix),
	}

	var earliest int64
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}

		ms := info.ModTime().UnixMilli()
		if earliest == 0 || ms < earliest {
			earliest = ms
		}
	}

	if earliest > 0 {
		return earliest
	}

	return time.Now().UnixMilli()
}

func (s *Store) writeSyncMeta(path string, meta *SyncMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), taskDirPermissions); err != nil {
		return fmt.Errorf("creating sidecar directory: %w", err)
	}

	data, err := encodeJSON(meta)
	if err != nil {
		return fmt.Errorf("encoding sync sidecar: %w", err)
	}

	if err := renameio.WriteFile(path, data, artifactPermissions); err != nil {
		return fmt.Errorf("writing sync sidecar %s: %w", path, err)
	}

	return nil
}
