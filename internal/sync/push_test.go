package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxh52013145/VNote/internal/bundle"
)

func TestPushValidation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	seedLocalItem(t, te.lib, "task-bare", "youtube", "v1", "Bare", 1000, "", nil)

	tests := []struct {
		name string
		req  PushRequest
		kind Kind
		msg  string
	}{
		{
			name: "blank item id",
			req:  PushRequest{ItemID: "  "},
			kind: KindValidation,
			msg:  "Missing item_id",
		},
		{
			name: "unknown item",
			req:  PushRequest{ItemID: "nope"},
			kind: KindNotFound,
			msg:  "Local item not found: nope",
		},
		{
			name: "note requested but absent",
			req:  PushRequest{ItemID: "task-bare", IncludeNote: true},
			kind: KindValidation,
			msg:  "Missing local note markdown",
		},
		{
			name: "transcript requested but absent",
			req:  PushRequest{ItemID: "task-bare", IncludeTranscript: true},
			kind: KindValidation,
			msg:  "Missing local transcript",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.Push(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestPushUploadsBundle(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	md := "# Pushed\n\nBody."
	transcript := map[string]any{"text": "hello", "segments": []any{}}
	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Pushed", 1000, md, transcript)

	res, err := te.Push(ctx, PushRequest{
		ItemID:            "task-1",
		IncludeNote:       true,
		IncludeTranscript: true,
	})
	require.NoError(t, err)

	assert.Equal(t, local.SourceKey, res.SourceKey)
	assert.Equal(t, local.SyncID, res.SyncID)
	assert.Equal(t, te.bucket, res.Minio.Bucket)
	assert.Equal(t, "bundles/"+local.SyncID+".zip", res.Minio.ObjectKey)
	assert.Nil(t, res.Dify.Note)
	assert.Nil(t, res.Dify.Transcript)
	assert.Empty(t, res.DifyError)

	obj, ok := te.store.object(te.bucket, res.Minio.ObjectKey)
	require.True(t, ok, "bundle must be uploaded")
	assert.Equal(t, "application/zip", obj.contentType)
	assert.Equal(t, bundle.SHA256Hex(obj.data), res.Minio.BundleSHA256)

	assert.Equal(t, res.Minio.BundleSHA256, obj.metadata["bundle-sha256"])
	assert.Equal(t, local.SyncID, obj.metadata["sync-id"])
	assert.Equal(t, local.SourceKey, obj.metadata["source-key"])
	assert.Equal(t, bundle.SHA256Hex(bundle.NoteBytes(md)), obj.metadata["note-sha256"])
	assert.NotEmpty(t, obj.metadata["transcript-sha256"])

	b, err := bundle.Parse(obj.data)
	require.NoError(t, err)
	assert.Equal(t, local.SourceKey, b.Meta.SourceKey)
	assert.Equal(t, local.SyncID, b.Meta.SyncID)
	assert.Equal(t, md, b.NoteMarkdown)
	assert.Equal(t, "hello", b.Transcript["text"])
}

func TestPushSkipsUnchangedBundle(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Stable", 1000, "# S", nil)
	req := PushRequest{ItemID: "task-1", IncludeNote: true}

	first, err := te.Push(ctx, req)
	require.NoError(t, err)
	uploads := len(te.store.puts)

	second, err := te.Push(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Minio.BundleSHA256, second.Minio.BundleSHA256)
	assert.Len(t, te.store.puts, uploads, "identical bundle must not be re-uploaded")

	// Changing the note changes the digest, so the next push uploads.
	require.NoError(t, te.lib.WriteMarkdown("task-1", "# S v2"))
	third, err := te.Push(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Minio.BundleSHA256, third.Minio.BundleSHA256)
	assert.Len(t, te.store.puts, uploads+1)
}

func TestPushRestoresTombstonedItem(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Restored", 1000, "# R", nil)
	tombKey := te.store.TombstoneKey(local.SyncID)
	require.NoError(t, te.store.PutBytes(ctx, te.bucket, tombKey, []byte("{}"), "application/json", nil))

	_, err := te.Push(ctx, PushRequest{ItemID: "task-1", IncludeNote: true})
	require.NoError(t, err)

	assert.Contains(t, te.store.removes, tombKey)
	_, ok := te.store.object(te.bucket, tombKey)
	assert.False(t, ok, "tombstone must be gone after a push")
}

func TestPushUpsertsDifyDocuments(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	transcript := map[string]any{"text": "hi", "segments": []any{}}
	seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Talk", 1000, "# T", transcript)
	req := PushRequest{
		ItemID:            "task-1",
		IncludeNote:       true,
		IncludeTranscript: true,
		UpdateDify:        true,
	}

	res, err := te.Push(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, res.DifyError)

	require.NotNil(t, res.Dify.Note)
	assert.Equal(t, testNoteDataset, res.Dify.Note.DatasetID)
	assert.Equal(t, "Talk [youtube:v1:1000] (note)", res.Dify.Note.Name)
	assert.NotEmpty(t, res.Dify.Note.DocumentID)
	assert.NotEmpty(t, res.Dify.Note.Batch)

	require.NotNil(t, res.Dify.Transcript)
	assert.Equal(t, testTranscriptDataset, res.Dify.Transcript.DatasetID)
	assert.Equal(t, "Talk [youtube:v1:1000] (transcript)", res.Dify.Transcript.Name)

	assert.Len(t, te.kc.created, 2)
	assert.Empty(t, te.kc.updated)

	// The names now exist, so the second push updates in place.
	res2, err := te.Push(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, res2.Dify.Note)
	assert.Equal(t, res.Dify.Note.DocumentID, res2.Dify.Note.DocumentID)
	assert.Len(t, te.kc.created, 2)
	assert.Len(t, te.kc.updated, 2)
}

func TestPushWithoutServiceKey(t *testing.T) {
	te := newTestEngine(t, func(cfg *EngineConfig) {
		cfg.Dify.ServiceAPIKey = ""
	})
	ctx := context.Background()

	local := seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Keyless", 1000, "# K", nil)

	res, err := te.Push(ctx, PushRequest{ItemID: "task-1", IncludeNote: true, UpdateDify: true})
	require.NoError(t, err)

	// The upload still happens; only the RAG side is reported as failed.
	_, ok := te.store.object(te.bucket, te.store.BundleKey(local.SyncID))
	assert.True(t, ok)
	assert.Equal(t, `{"dify":"Missing DIFY_SERVICE_API_KEY"}`, res.DifyError)
	assert.Nil(t, res.Dify.Note)
	assert.Empty(t, te.kc.created)
}

func TestPushCollectsDifyErrorsPerSide(t *testing.T) {
	te := newTestEngine(t)
	te.kc.createErr = fmt.Errorf("quota exceeded")
	ctx := context.Background()

	transcript := map[string]any{"text": "hi", "segments": []any{}}
	seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Failing", 1000, "# F", transcript)

	res, err := te.Push(ctx, PushRequest{
		ItemID:            "task-1",
		IncludeNote:       true,
		IncludeTranscript: true,
		UpdateDify:        true,
	})
	require.NoError(t, err, "RAG failures after the upload must not fail the push")

	assert.Nil(t, res.Dify.Note)
	assert.Nil(t, res.Dify.Transcript)

	var sides map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.DifyError), &sides))
	assert.Equal(t, "quota exceeded", sides["note"])
	assert.Equal(t, "quota exceeded", sides["transcript"])
}

func TestPushUploadFailure(t *testing.T) {
	te := newTestEngine(t)
	te.store.putErr = fmt.Errorf("minio unreachable")

	seedLocalItem(t, te.lib, "task-1", "youtube", "v1", "Broken", 1000, "# B", nil)

	_, err := te.Push(context.Background(), PushRequest{ItemID: "task-1", IncludeNote: true})
	require.Error(t, err)
	assert.Equal(t, KindRemoteFailure, KindOf(err))
}
