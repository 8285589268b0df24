package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Delete removes every artifact of a task: the nested task directory and any
// legacy flat siblings under the library root. Read-only entries get a
// write-bit fix-up and a retry. An error is returned when residue remains,
// because a half-deleted task would be rediscovered by the next scan.
func (s *Store) Delete(taskID string) error {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return nil
	}

	if err := s.deleteTaskDir(tid); err != nil {
		return err
	}

	return s.deleteLegacySiblings(tid)
}

func (s *Store) deleteTaskDir(taskID string) error {
	taskDir := filepath.Join(s.root, taskID)
	if !isDir(taskDir) {
		return nil
	}

	if err := os.RemoveAll(taskDir); err != nil {
		s.logger.Debug("task dir removal failed, retrying with write-bit fix-up",
			"task_id", taskID, "error", err)
		makeTreeWritable(taskDir)

		if err := os.RemoveAll(taskDir); err != nil {
			return fmt.Errorf("deleting local task dir %s: %w", taskDir, err)
		}
	}

	if _, err := os.Stat(taskDir); err == nil {
		return fmt.Errorf("deleting local task dir %s: leftover entries remain", taskDir)
	}

	return nil
}

// makeTreeWritable adds the owner write bit to every entry under dir so a
// subsequent RemoveAll can unlink read-only artifacts.
func makeTreeWritable(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		_ = os.Chmod(path, info.Mode().Perm()|0o200)

		return nil
	})
}

func (s *Store) deleteLegacySiblings(taskID string) error {
	candidates := []string{
		filepath.Join(s.root, taskID+resultSuffix),
		filepath.Join(s.root, taskID+statusSuffix),
		filepath.Join(s.root, taskID+syncMetaSuffix),
		filepath.Join(s.root, taskID+audioSuffix),
		filepath.Join(s.root, taskID+transcriptSuffix),
		filepath.Join(s.root, taskID+markdownSuffix),
		filepath.Join(s.root, taskID+"_markdown"+statusSuffix),
	}

	var leftover []string
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}

		_ = os.Chmod(p, info.Mode().Perm()|0o200)

		if err := os.Remove(p); err != nil {
			if _, statErr := os.Stat(p); statErr == nil {
				leftover = append(leftover, p)
			}
		}
	}

	if len(leftover) > 0 {
		preview := leftover
		if len(preview) > 3 {
			preview = preview[:3]
		}

		return fmt.Errorf("deleting local task files: %s", strings.Join(preview, ", "))
	}

	return nil
}
