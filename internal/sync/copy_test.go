package sync

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/identity"
)

func TestCopyValidation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Source", 1000, "# S", nil)

	tests := []struct {
		name string
		req  CopyRequest
		kind Kind
		msg  string
	}{
		{
			name: "blank source key",
			req:  CopyRequest{SourceKey: " "},
			kind: KindValidation,
			msg:  "Missing source_key",
		},
		{
			name: "unparsable source key",
			req:  CopyRequest{SourceKey: "garbage"},
			kind: KindValidation,
			msg:  "Invalid source_key (expected platform:video_id:created_at_ms)",
		},
		{
			name: "bad side",
			req:  CopyRequest{SourceKey: local.SourceKey, FromSide: "sideways"},
			kind: KindValidation,
			msg:  "Invalid from_side (expected local|remote)",
		},
		{
			name: "no local item",
			req:  CopyRequest{SourceKey: identity.MakeSourceKey("youtube", "other", 99)},
			kind: KindNotFound,
			msg:  "Local item not found for source_key",
		},
		{
			name: "transcript requested but item has none",
			req:  CopyRequest{SourceKey: local.SourceKey, IncludeTranscript: true},
			kind: KindValidation,
			msg:  "Missing transcript",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.Copy(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestCopyMissingNoteMarkdown(t *testing.T) {
	te := newTestEngine(t)

	local := seedLocalItem(t, te.lib, "task-bare", "youtube", "vb", "Bare", 1000, "", nil)

	_, err := te.Copy(context.Background(), CopyRequest{SourceKey: local.SourceKey, IncludeNote: true})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Missing note markdown", err.Error())
}

func TestCopyFromLocal(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	md := "# Copy me"
	transcript := map[string]any{"text": "hello", "segments": []any{}}
	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Copied", 1000, md, transcript)

	res, err := te.Copy(ctx, CopyRequest{
		SourceKey:         local.SourceKey,
		IncludeNote:       true,
		IncludeTranscript: true,
		NewCreatedAtMs:    5000,
	})
	require.NoError(t, err)

	newKey := identity.MakeSourceKey("youtube", "v1", 5000)
	newID := identity.ComputeSyncID(newKey)
	assert.Equal(t, newKey, res.SourceKey)
	assert.Equal(t, newID, res.SyncID)
	assert.Equal(t, newID, res.TaskID, "the copy's task id is its sync id")
	assert.Equal(t, "bundles/"+newID+".zip", res.Minio.ObjectKey)
	assert.Empty(t, res.DifyError)
	assert.Nil(t, res.Dify.Note)

	// Uploaded under the new identity, source bundle untouched.
	obj, ok := te.store.object(te.bucket, res.Minio.ObjectKey)
	require.True(t, ok)
	assert.Equal(t, res.Minio.BundleSHA256, obj.metadata["bundle-sha256"])
	assert.Equal(t, newKey, obj.metadata["source-key"])
	assert.Equal(t, newID, obj.metadata["sync-id"])

	b, err := bundle.Parse(obj.data)
	require.NoError(t, err)
	assert.Equal(t, newKey, b.Meta.SourceKey)
	assert.Equal(t, md, b.NoteMarkdown)

	// The copy is immediately usable locally under the new identity.
	item, err := te.lib.Load(newID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, newKey, item.SourceKey)
	assert.Equal(t, int64(5000), item.CreatedAtMs)

	got, err := os.ReadFile(te.lib.NestedPaths(newID).Markdown)
	require.NoError(t, err)
	assert.Equal(t, md, string(got))

	result := te.lib.ReadResult(newID)
	require.NotNil(t, result)
	assert.Equal(t, md, result["markdown"])
	syncInfo, ok := result["sync"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, newKey, syncInfo["source_key"])
}

func TestCopyBumpsTimestampOnCollision(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Crowded", 1000, "# C", nil)

	// 5000 is taken by a local task dir, 5001 by a remote bundle.
	taken := identity.ComputeSyncID(identity.MakeSourceKey("youtube", "v1", 5000))
	_, err := te.lib.EnsureTaskDir(taken)
	require.NoError(t, err)

	takenRemote := identity.ComputeSyncID(identity.MakeSourceKey("youtube", "v1", 5001))
	require.NoError(t, te.store.PutBytes(ctx, te.bucket, te.store.BundleKey(takenRemote),
		[]byte("zip"), "application/zip", nil))

	res, err := te.Copy(ctx, CopyRequest{
		SourceKey:      local.SourceKey,
		IncludeNote:    true,
		NewCreatedAtMs: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, identity.MakeSourceKey("youtube", "v1", 5002), res.SourceKey)
}

func TestCopyFailsWhenNoIdentityIsFree(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Full", 1000, "# F", nil)

	for ms := int64(5000); ms < 5020; ms++ {
		id := identity.ComputeSyncID(identity.MakeSourceKey("youtube", "v1", ms))
		_, err := te.lib.EnsureTaskDir(id)
		require.NoError(t, err)
	}

	_, err := te.Copy(ctx, CopyRequest{
		SourceKey:      local.SourceKey,
		IncludeNote:    true,
		NewCreatedAtMs: 5000,
	})
	require.Error(t, err)
	assert.Equal(t, KindRemoteFailure, KindOf(err))
	assert.Equal(t, "Failed to generate unique copy id", err.Error())
}

func TestCopyFromRemote(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	// Only a remote bundle exists; it carries a note but no transcript.
	srcKey := identity.MakeSourceKey("youtube", "v1", 1000)
	seedRemoteBundle(t, te, srcKey, "# Remote note", nil, testAudio("Remote Source"))

	res, err := te.Copy(ctx, CopyRequest{
		SourceKey:         srcKey,
		FromSide:          "remote",
		IncludeNote:       true,
		IncludeTranscript: true, // extracted transcripts are empty objects, never nil
		NewCreatedAtMs:    7000,
	})
	require.NoError(t, err)

	newKey := identity.MakeSourceKey("youtube", "v1", 7000)
	assert.Equal(t, newKey, res.SourceKey)

	item, err := te.lib.Load(res.TaskID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, newKey, item.SourceKey)

	got, err := os.ReadFile(te.lib.NestedPaths(res.TaskID).Markdown)
	require.NoError(t, err)
	assert.Equal(t, "# Remote note", string(got))

	// Both bundles exist afterwards: the source is never moved.
	_, ok := te.store.object(te.bucket, te.store.BundleKey(identity.ComputeSyncID(srcKey)))
	assert.True(t, ok)
	_, ok = te.store.object(te.bucket, res.Minio.ObjectKey)
	assert.True(t, ok)
}

func TestCopyFromRemoteMissingBundle(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.Copy(context.Background(), CopyRequest{
		SourceKey: identity.MakeSourceKey("youtube", "v1", 1000),
		FromSide:  "remote",
	})
	require.Error(t, err)
	assert.Equal(t, KindRemoteFailure, KindOf(err))
}

func TestCopyCreatesDifyDocs(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	transcript := map[string]any{"text": "hi", "segments": []any{}}
	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Docs", 1000, "# D", transcript)

	res, err := te.Copy(ctx, CopyRequest{
		SourceKey:         local.SourceKey,
		IncludeNote:       true,
		IncludeTranscript: true,
		CreateDifyDocs:    true,
		NewCreatedAtMs:    5000,
	})
	require.NoError(t, err)
	assert.Empty(t, res.DifyError)

	require.NotNil(t, res.Dify.Note)
	assert.Equal(t, "Docs [youtube:v1:5000] (note)", res.Dify.Note.Name)
	require.NotNil(t, res.Dify.Transcript)
	assert.Equal(t, "Docs [youtube:v1:5000] (transcript)", res.Dify.Transcript.Name)

	// Copies always create; they must never hijack the source's documents.
	assert.Len(t, te.kc.created, 2)
	assert.Empty(t, te.kc.updated)
}

func TestCopyCollectsDifyErrors(t *testing.T) {
	te := newTestEngine(t)
	te.kc.createErr = fmt.Errorf("dataset full")
	ctx := context.Background()

	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Errs", 1000, "# E", nil)

	res, err := te.Copy(ctx, CopyRequest{
		SourceKey:      local.SourceKey,
		IncludeNote:    true,
		CreateDifyDocs: true,
		NewCreatedAtMs: 5000,
	})
	require.NoError(t, err, "RAG failures after the upload must not fail the copy")

	assert.Nil(t, res.Dify.Note)
	assert.Contains(t, res.DifyError, "dataset full")

	// The bundle and local copy still exist.
	_, ok := te.store.object(te.bucket, res.Minio.ObjectKey)
	assert.True(t, ok)
}
