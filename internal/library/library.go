// Package library manages the on-disk note library: one directory per task
// holding the note result, status, sync sidecar, and the markdown, transcript
// and audio artifacts. The legacy flat layout (artifacts directly under the
// library root) is still honored on read; all writes use the nested layout.
package library

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Artifact name suffixes within a task directory. A task with id <tid> owns
// <tid>.json (result), <tid>.status.json, <tid>.sync.json, <tid>_markdown.md,
// <tid>_transcript.json and <tid>_audio.json.
const (
	resultSuffix     = ".json"
	statusSuffix     = ".status.json"
	syncMetaSuffix   = ".sync.json"
	markdownSuffix   = "_markdown.md"
	transcriptSuffix = "_transcript.json"
	audioSuffix      = "_audio.json"
)

const (
	artifactPermissions = 0o644
	taskDirPermissions  = 0o755
)

// Store reads and writes the local note library rooted at a single directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a Store over the given library root. The root does not
// need to exist yet; reads treat a missing root as an empty library.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{root: root, logger: logger}
}

// Root returns the library root directory.
func (s *Store) Root() string {
	return s.root
}

// Item describes one locally stored note task with its pinned sync identity.
// Path fields are empty when the corresponding artifact does not exist.
type Item struct {
	TaskID      string
	Title       string
	Platform    string
	VideoID     string
	CreatedAtMs int64
	SourceKey   string
	SyncID      string

	TaskDir        string
	MarkdownPath   string
	TranscriptPath string
	AudioPath      string
	ResultPath     string
	StatusPath     string
}

// taskPaths resolves the artifact locations for a task id. The nested layout
// wins when the task directory exists; otherwise the legacy flat layout under
// the library root is probed. Absent artifacts resolve to "".
type taskPaths struct {
	taskDir        string
	resultPath     string
	statusPath     string
	markdownPath   string
	transcriptPath string
	audioPath      string
}

func (s *Store) resolvePaths(taskID string) taskPaths {
	tid := strings.TrimSpace(taskID)
	taskDir := filepath.Join(s.root, tid)

	base := s.root
	if isDir(taskDir) {
		base = taskDir
	} else {
		taskDir = base
	}

	return taskPaths{
		taskDir:        taskDir,
		resultPath:     existingPath(filepath.Join(base, tid+resultSuffix)),
		statusPath:     existingPath(filepath.Join(base, tid+statusSuffix)),
		markdownPath:   existingPath(filepath.Join(base, tid+markdownSuffix)),
		transcriptPath: existingPath(filepath.Join(base, tid+transcriptSuffix)),
		audioPath:      existingPath(filepath.Join(base, tid+audioSuffix)),
	}
}

// TaskDir returns the nested task directory path for a task id (whether or
// not it exists yet). Writes always target this layout.
func (s *Store) TaskDir(taskID string) string {
	return filepath.Join(s.root, strings.TrimSpace(taskID))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func existingPath(path string) string {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}

	return ""
}

// readJSONMap reads a JSON object from path. Missing, unreadable or
// non-object content yields nil — callers treat all of these as "no data".
func readJSONMap(path string) map[string]any {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}

	return m
}

// encodeJSON renders v with two-space indentation and no HTML escaping,
// matching the encoding used across the library's JSON artifacts.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// coerceMs converts a loosely-typed JSON value to a positive millisecond
// timestamp, returning 0 when the value is absent, negative or non-numeric.
func coerceMs(v any) int64 {
	switch n := v.(type) {
	case float64:
		ms := int64(n)
		if ms > 0 {
			return ms
		}
	case json.Number:
		if ms, err := n.Int64(); err == nil && ms > 0 {
			return ms
		}
	case int64:
		if n > 0 {
			return n
		}
	case int:
		if n > 0 {
			return int64(n)
		}
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0
		}
		var ms int64
		for _, r := range trimmed {
			if r < '0' || r > '9' {
				return 0
			}
			ms = ms*10 + int64(r-'0')
		}
		if ms > 0 {
			return ms
		}
	}

	return 0
}
