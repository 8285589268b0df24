package raghistory

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rag_history.json")

	return NewStore(path, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestList_MissingFile(t *testing.T) {
	store := newTestStore(t)

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppend_FillsGeneratedFields(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Append(Entry{Role: "user", Content: "what did the talk cover?"})
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "user", saved.Role)
	_, err = time.Parse(time.RFC3339, saved.CreatedAt)
	assert.NoError(t, err, "created_at must be RFC3339")

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, saved, entries[0])
}

func TestAppend_KeepsCallerFields(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Append(Entry{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           "assistant",
		Content:        "the talk covered channels",
		CreatedAt:      "2026-01-02T03:04:05Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", saved.ID)
	assert.Equal(t, "conv-1", saved.ConversationID)
	assert.Equal(t, "2026-01-02T03:04:05Z", saved.CreatedAt)
}

func TestAppend_RejectsMissingRole(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append(Entry{Content: "no role"})
	require.ErrorIs(t, err, ErrInvalid)

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppend_CapsHistory(t *testing.T) {
	store := newTestStore(t)

	for i := range maxEntries + 10 {
		_, err := store.Append(Entry{Role: "user", Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, maxEntries)

	// Oldest entries drop first.
	assert.Equal(t, "msg 10", entries[0].Content)
	assert.Equal(t, fmt.Sprintf("msg %d", maxEntries+9), entries[len(entries)-1].Content)
}

func TestConversationFilters(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append(Entry{Role: "user", ConversationID: "a", Content: "q1"})
	require.NoError(t, err)
	_, err = store.Append(Entry{Role: "assistant", ConversationID: "a", Content: "a1"})
	require.NoError(t, err)
	_, err = store.Append(Entry{Role: "user", ConversationID: "b", Content: "q2"})
	require.NoError(t, err)

	got, err := store.Conversation("a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[0].Content)
	assert.Equal(t, "a1", got[1].Content)

	_, err = store.Conversation("  ")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestClear(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append(Entry{Role: "user", Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, store.Clear())

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadToleratesMalformedFile(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The next append heals the file.
	_, err = store.Append(Entry{Role: "user", Content: "fresh"})
	require.NoError(t, err)

	entries, err = store.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
