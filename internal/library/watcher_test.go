package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	w, err := NewWatcher(root, testLogger(t))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, w.Close())
	}()

	t.Run("starts dirty", func(t *testing.T) {
		assert.True(t, w.Dirty())
		assert.True(t, w.ConsumeDirty())
		assert.False(t, w.Dirty())
	})

	t.Run("file create flips the flag", func(t *testing.T) {
		w.ConsumeDirty()

		require.NoError(t, os.WriteFile(filepath.Join(root, "new.status.json"), []byte("{}"), 0o644))

		require.Eventually(t, w.Dirty, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("new task directory is watched", func(t *testing.T) {
		taskDir := filepath.Join(root, "task-w")
		require.NoError(t, os.MkdirAll(taskDir, 0o755))

		require.Eventually(t, w.Dirty, 2*time.Second, 10*time.Millisecond)
		w.ConsumeDirty()

		// A write inside the new directory must be seen too. fsnotify needs a
		// moment to register the directory watch.
		require.Eventually(t, func() bool {
			name := filepath.Join(taskDir, "task-w.json")
			if err := os.WriteFile(name, []byte("{}"), 0o644); err != nil {
				return false
			}
			return w.Dirty()
		}, 2*time.Second, 25*time.Millisecond)
	})

	t.Run("mark dirty", func(t *testing.T) {
		w.ConsumeDirty()
		w.MarkDirty()
		assert.True(t, w.Dirty())
	})
}

func TestWatcherMissingRootIsCreated(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := filepath.Join(t.TempDir(), "not-yet")
	w, err := NewWatcher(root, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.DirExists(t, root)
}
