package bundle

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullInput() Input {
	return Input{
		SourceKey:    "bilibili:BV1xx411c7mD:1700000000000",
		SyncID:       "deadbeef",
		NoteMarkdown: "# Title\n\nSome body.\n",
		Audio: map[string]any{
			"platform": "bilibili",
			"video_id": "BV1xx411c7mD",
			"title":    "How Go Works",
			"duration": 123.4,
		},
		Transcript: map[string]any{
			"full_text": "hello world",
			"segments": []any{
				map[string]any{"start": 0.0, "end": 1.5, "text": "hello"},
				map[string]any{"start": 1.5, "end": 3.0, "text": "world"},
			},
		},
		ExtraMeta: map[string]any{
			"request": map[string]any{"model_name": "gpt-4o", "style": "detailed"},
		},
	}
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func readEntry(t *testing.T, data []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		buf := new(bytes.Buffer)
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		return buf.Bytes()
	}
	t.Fatalf("entry %s not found", name)
	return nil
}

// --- Build ---

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(fullInput())
	require.NoError(t, err)
	b, err := Build(fullInput())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, SHA256Hex(a), SHA256Hex(b))
}

func TestBuild_EntryOrder(t *testing.T) {
	data, err := Build(fullInput())
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"meta.json", "audio.json", "transcript.json", "transcript.srt", "note.md"},
		entryNames(t, data))
}

func TestBuild_OmitsAbsentParts(t *testing.T) {
	in := fullInput()
	in.Audio = nil
	in.NoteMarkdown = "   \n"

	data, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"meta.json", "transcript.json", "transcript.srt"}, entryNames(t, data))

	b, err := Parse(data)
	require.NoError(t, err)
	assert.False(t, b.Meta.Files["note_md"])
	assert.False(t, b.Meta.Files["audio_json"])
	assert.True(t, b.Meta.Files["transcript_json"])
	assert.NotContains(t, b.Meta.ContentSHA, "note_md")
}

func TestBuild_ContentHashesMatchEntries(t *testing.T) {
	data, err := Build(fullInput())
	require.NoError(t, err)

	b, err := Parse(data)
	require.NoError(t, err)

	for key, name := range map[string]string{
		"note_md":         "note.md",
		"audio_json":      "audio.json",
		"transcript_json": "transcript.json",
		"transcript_srt":  "transcript.srt",
	} {
		want, ok := b.Meta.ContentSHA[key]
		require.True(t, ok, key)
		sum := sha256.Sum256(readEntry(t, data, name))
		assert.Equal(t, want, hex.EncodeToString(sum[:]), key)
	}
}

func TestBuild_StripsNoteBOM(t *testing.T) {
	in := fullInput()
	in.NoteMarkdown = "\uFEFF# Title\n"

	data, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, []byte("# Title\n"), readEntry(t, data, "note.md"))
}

func TestBuild_FixedEntryMetadata(t *testing.T) {
	data, err := Build(fullInput())
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		assert.Equal(t, 1980, f.Modified.UTC().Year(), f.Name)
		assert.EqualValues(t, zip.Deflate, f.Method, f.Name)
	}
}

func TestBuild_CreatedAtFromSourceKey(t *testing.T) {
	data, err := Build(fullInput())
	require.NoError(t, err)
	b, err := Parse(data)
	require.NoError(t, err)
	assert.EqualValues(t, 1700000000000, b.Meta.CreatedAtMs)

	in := fullInput()
	in.SourceKey = "no-timestamp"
	data, err = Build(in)
	require.NoError(t, err)
	b, err = Parse(data)
	require.NoError(t, err)
	assert.Zero(t, b.Meta.CreatedAtMs)
	assert.Contains(t, string(readEntry(t, data, "meta.json")), `"created_at_ms": null`)
}

func TestBuild_ExtraMetaMergedTopLevel(t *testing.T) {
	data, err := Build(fullInput())
	require.NoError(t, err)

	b, err := Parse(data)
	require.NoError(t, err)
	require.NotNil(t, b.Meta.Request)
	assert.Equal(t, "gpt-4o", b.Meta.Request["model_name"])
	assert.Equal(t, "detailed", b.MetaRaw["request"].(map[string]any)["model_name"])
}

// --- SRT derivation ---

func TestBuild_SRTFallbackCue(t *testing.T) {
	in := fullInput()
	in.Transcript = map[string]any{"full_text": "only a flat text"}

	data, err := Build(in)
	require.NoError(t, err)
	srt := string(readEntry(t, data, "transcript.srt"))
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:00,000\nonly a flat text\n", srt)
}

func TestBuild_SRTMergesShortSegments(t *testing.T) {
	segs := make([]any, 0, 10)
	for i := 0; i < 10; i++ {
		segs = append(segs, map[string]any{
			"start": float64(i),
			"end":   float64(i + 1),
			"text":  "short",
		})
	}
	in := fullInput()
	in.Transcript = map[string]any{"segments": segs}

	data, err := Build(in)
	require.NoError(t, err)
	srtText := string(readEntry(t, data, "transcript.srt"))

	// Ten one-second segments fit comfortably in one default window.
	assert.True(t, strings.HasPrefix(srtText, "1\n"))
	assert.NotContains(t, srtText, "\n2\n")
	assert.Contains(t, srtText, "short short")
}

func TestBuild_NoSRTWhenTranscriptEmptyText(t *testing.T) {
	in := fullInput()
	in.Transcript = map[string]any{"full_text": "   "}

	data, err := Build(in)
	require.NoError(t, err)
	assert.NotContains(t, entryNames(t, data), "transcript.srt")
}

// --- canonical JSON ---

func TestCanonicalJSON(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{
		"b":    1,
		"a":    "山と海",
		"link": "https://example.com/?a=1&b=<2>",
	})
	require.NoError(t, err)

	want := "{\n  \"a\": \"山と海\",\n  \"b\": 1,\n  \"link\": \"https://example.com/?a=1&b=<2>\"\n}"
	assert.Equal(t, want, string(got))
	assert.False(t, bytes.HasSuffix(got, []byte("\n")))
}

func TestCanonicalJSON_SortsNestedKeys(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"outer": map[string]any{"z": 1, "a": 2}})
	require.NoError(t, err)
	assert.Less(t, bytes.Index(got, []byte(`"a"`)), bytes.Index(got, []byte(`"z"`)))
}

// --- Parse ---

func TestParse_RoundTrip(t *testing.T) {
	in := fullInput()
	data, err := Build(in)
	require.NoError(t, err)

	b, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, in.SourceKey, b.Meta.SourceKey)
	assert.Equal(t, in.SyncID, b.Meta.SyncID)
	assert.Equal(t, 1, b.Meta.Version)
	assert.Equal(t, in.NoteMarkdown, b.NoteMarkdown)
	assert.Equal(t, "bilibili", b.Audio["platform"])
	assert.Equal(t, "hello world", b.Transcript["full_text"])
	assert.NotEmpty(t, b.SRT)
}

func TestParse_ToleratesMissingEntries(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("note.md")
	require.NoError(t, err)
	_, err = w.Write([]byte("just a note"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	b, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "just a note", b.NoteMarkdown)
	assert.Empty(t, b.Meta.SourceKey)
	assert.Empty(t, b.Audio)
	assert.Empty(t, b.Transcript)
}

func TestParse_RejectsCorruptZip(t *testing.T) {
	_, err := Parse([]byte("this is not a zip"))
	assert.Error(t, err)
}

func TestParse_RejectsMalformedMeta(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("meta.json")
	require.NoError(t, err)
	_, err = w.Write([]byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Parse(buf.Bytes())
	assert.Error(t, err)
}
