package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// MergeJSON merges patch keys into the JSON object at path and writes the
// result atomically. A missing or corrupt file merges into an empty object.
func (s *Store) MergeJSON(path string, patch map[string]any) error {
	existing := readJSONMap(existingPath(path))
	if existing == nil {
		existing = make(map[string]any, len(patch))
	}

	for k, v := range patch {
		existing[k] = v
	}

	data, err := encodeJSON(existing)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	if err := renameio.WriteFile(path, data, artifactPermissions); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// EnsureTaskDir creates the nested task directory and returns its path.
func (s *Store) EnsureTaskDir(taskID string) (string, error) {
	dir := s.TaskDir(taskID)
	if err := os.MkdirAll(dir, taskDirPermissions); err != nil {
		return "", fmt.Errorf("creating task directory %s: %w", dir, err)
	}

	return dir, nil
}

// nestedArtifact builds the nested-layout path for an artifact, creating the
// task directory.
func (s *Store) nestedArtifact(taskID, suffix string) (string, error) {
	dir, err := s.EnsureTaskDir(taskID)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, strings.TrimSpace(taskID)+suffix), nil
}

// WriteMarkdown writes the note markdown artifact, stripping a UTF-8 BOM.
func (s *Store) WriteMarkdown(taskID, markdown string) error {
	path, err := s.nestedArtifact(taskID, markdownSuffix)
	if err != nil {
		return err
	}

	text := strings.TrimPrefix(markdown, "\uFEFF")
	if err := renameio.WriteFile(path, []byte(text), artifactPermissions); err != nil {
		return fmt.Errorf("writing markdown %s: %w", path, err)
	}

	return nil
}

// WriteTranscript writes the transcript JSON artifact.
func (s *Store) WriteTranscript(taskID string, transcript map[string]any) error {
	return s.writeJSONArtifact(taskID, transcriptSuffix, transcript)
}

// WriteAudio writes the audio metadata JSON artifact.
func (s *Store) WriteAudio(taskID string, audio map[string]any) error {
	return s.writeJSONArtifact(taskID, audioSuffix, audio)
}

// WriteResult replaces the task's result document.
func (s *Store) WriteResult(taskID string, result map[string]any) error {
	return s.writeJSONArtifact(taskID, resultSuffix, result)
}

func (s *Store) writeJSONArtifact(taskID, suffix string, payload map[string]any) error {
	path, err := s.nestedArtifact(taskID, suffix)
	if err != nil {
		return err
	}

	data, err := encodeJSON(payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	if err := renameio.WriteFile(path, data, artifactPermissions); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// ArtifactPaths lists the nested-layout write targets for a task. The paths
// are returned whether or not the files exist yet.
type ArtifactPaths struct {
	TaskDir    string
	Result     string
	Status     string
	Markdown   string
	Transcript string
	Audio      string
}

// NestedPaths computes the nested artifact locations for a task without
// touching the filesystem. Callers that probe before writing use this to
// decide which artifacts may be clobbered.
func (s *Store) NestedPaths(taskID string) ArtifactPaths {
	tid := strings.TrimSpace(taskID)
	dir := s.TaskDir(tid)

	return ArtifactPaths{
		TaskDir:    dir,
		Result:     filepath.Join(dir, tid+resultSuffix),
		Status:     filepath.Join(dir, tid+statusSuffix),
		Markdown:   filepath.Join(dir, tid+markdownSuffix),
		Transcript: filepath.Join(dir, tid+transcriptSuffix),
		Audio:      filepath.Join(dir, tid+audioSuffix),
	}
}

// StatusPath returns the nested status document path for a task, creating
// the task directory.
func (s *Store) StatusPath(taskID string) (string, error) {
	return s.nestedArtifact(taskID, statusSuffix)
}

// ReplaceStatus overwrites the task's status document wholesale. Unlike
// WriteStatus it does not merge with the previous snapshot; sync operations
// that materialize a task from a bundle use it to install a clean SUCCESS
// status.
func (s *Store) ReplaceStatus(taskID string, payload map[string]any) error {
	return s.writeJSONArtifact(taskID, statusSuffix, payload)
}

// ResultPath returns the nested result document path for a task, creating
// the task directory.
func (s *Store) ResultPath(taskID string) (string, error) {
	return s.nestedArtifact(taskID, resultSuffix)
}

// WriteStatus merges a status snapshot (stage, progress, message plus any
// extras) into the task's status document. Extras with nil values are
// written explicitly so callers can clear stale fields.
func (s *Store) WriteStatus(taskID, status string, progress int, message string, extra map[string]any) error {
	path, err := s.StatusPath(taskID)
	if err != nil {
		return err
	}

	patch := map[string]any{
		"status":   status,
		"progress": progress,
		"message":  message,
	}
	for k, v := range extra {
		patch[k] = v
	}

	return s.MergeJSON(path, patch)
}

// ReadStatus returns the task's status document, preferring the nested
// layout. Returns nil when no status exists.
func (s *Store) ReadStatus(taskID string) map[string]any {
	return readJSONMap(s.resolvePaths(taskID).statusPath)
}

// ReadResult returns the task's result document, or nil when absent.
func (s *Store) ReadResult(taskID string) map[string]any {
	return readJSONMap(s.resolvePaths(taskID).resultPath)
}
