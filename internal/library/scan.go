package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pxh52013145/VNote/internal/identity"
)

// Scan discovers every local note task and returns items sorted by task id.
// Tasks without usable audio identity (platform + video id) are skipped —
// they cannot form a source key. Scanning a missing root yields no items.
func (s *Store) Scan() ([]Item, error) {
	if _, err := os.Stat(s.root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	taskIDs := make(map[string]bool)

	// Nested layout: <root>/<task_id>/<task_id>.status.json (or .json).
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		tid := strings.TrimSpace(entry.Name())
		if tid == "" {
			continue
		}

		dir := filepath.Join(s.root, entry.Name())
		if existingPath(filepath.Join(dir, tid+statusSuffix)) != "" ||
			existingPath(filepath.Join(dir, tid+resultSuffix)) != "" {
			taskIDs[tid] = true
		}
	}

	// Legacy flat layout: <root>/<task_id>.status.json.
	flat, err := filepath.Glob(filepath.Join(s.root, "*"+statusSuffix))
	if err == nil {
		for _, p := range flat {
			tid := strings.TrimSpace(strings.TrimSuffix(filepath.Base(p), statusSuffix))
			if tid != "" {
				taskIDs[tid] = true
			}
		}
	}

	ids := make([]string, 0, len(taskIDs))
	for tid := range taskIDs {
		ids = append(ids, tid)
	}
	sort.Strings(ids)

	items := make([]Item, 0, len(ids))
	for _, tid := range ids {
		item, err := s.loadItem(tid)
		if err != nil {
			return nil, err
		}

		if item != nil {
			items = append(items, *item)
		}
	}

	return items, nil
}

// Load returns the item for a task id, or (nil, nil) when the task does not
// exist or lacks the audio identity needed to form a source key.
func (s *Store) Load(taskID string) (*Item, error) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return nil, nil
	}

	return s.loadItem(tid)
}

func (s *Store) loadItem(taskID string) (*Item, error) {
	paths := s.resolvePaths(taskID)

	title, platform, videoID, ok := parseAudioIdentity(paths)
	if !ok {
		return nil, nil
	}

	preferMs := readPreferredCreatedAt(paths)

	meta, err := s.EnsureSyncMeta(taskID, platform, videoID, title, preferMs)
	if err != nil {
		return nil, err
	}

	createdAtMs := meta.CreatedAtMs
	if createdAtMs <= 0 {
		createdAtMs = fallbackMtimeMs(paths, s.root)
	}

	return &Item{
		TaskID:         taskID,
		Title:          title,
		Platform:       platform,
		VideoID:        videoID,
		CreatedAtMs:    createdAtMs,
		SourceKey:      meta.SourceKey,
		SyncID:         meta.SyncID,
		TaskDir:        paths.taskDir,
		MarkdownPath:   paths.markdownPath,
		TranscriptPath: paths.transcriptPath,
		AudioPath:      paths.audioPath,
		ResultPath:     paths.resultPath,
		StatusPath:     paths.statusPath,
	}, nil
}

// parseAudioIdentity extracts (title, platform, video id) from the audio
// artifact, falling back to the audio_meta block of the result document.
// Both platform and video id are required.
func parseAudioIdentity(paths taskPaths) (title, platform, videoID string, ok bool) {
	if audio := readJSONMap(paths.audioPath); audio != nil {
		title = trimStringField(audio, "title")
		platform = trimStringField(audio, "platform")
		videoID = trimStringField(audio, "video_id")

		if platform != "" && videoID != "" {
			return title, platform, videoID, true
		}
	}

	if res := readJSONMap(paths.resultPath); res != nil {
		if audio, isMap := res["audio_meta"].(map[string]any); isMap {
			title = trimStringField(audio, "title")
			platform = trimStringField(audio, "platform")
			videoID = trimStringField(audio, "video_id")

			if platform != "" && videoID != "" {
				return title, platform, videoID, true
			}
		}
	}

	return "", "", "", false
}

// readPreferredCreatedAt reads the authoritative created_at_ms persisted
// inside the result or status document (sync.created_at_ms, else the tail of
// sync.source_key). Returns 0 when neither document pins a timestamp.
func readPreferredCreatedAt(paths taskPaths) int64 {
	for _, p := range []string{paths.resultPath, paths.statusPath} {
		payload := readJSONMap(p)
		if payload == nil {
			continue
		}

		syncInfo, isMap := payload["sync"].(map[string]any)
		if !isMap {
			continue
		}

		if ms := coerceMs(syncInfo["created_at_ms"]); ms > 0 {
			return ms
		}

		if key, isStr := syncInfo["source_key"].(string); isStr {
			if _, _, ms, err := identity.ParseSourceKey(key); err == nil {
				return ms
			}
		}
	}

	return 0
}

// fallbackMtimeMs provides a last-resort timestamp from the status or result
// artifact mtime, or the library root when neither exists.
func fallbackMtimeMs(paths taskPaths, root string) int64 {
	for _, p := range []string{paths.statusPath, paths.resultPath, root} {
		if p == "" {
			continue
		}

		if info, err := os.Stat(p); err == nil {
			return info.ModTime().UnixMilli()
		}
	}

	return nowMs()
}

func trimStringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}
