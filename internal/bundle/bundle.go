// Package bundle builds and reads the zip archives that carry a library
// item between devices through the object store.
//
// Bundles are deterministic: equal inputs produce byte-equal archives, so
// the archive's SHA-256 doubles as an idempotency and equality check
// across devices. Determinism comes from canonical JSON (sorted keys,
// two-space indent, UTF-8), a fixed 1980-01-01 entry timestamp, fixed
// 0644 entry mode, DEFLATE compression, and a fixed entry order.
package bundle

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pxh52013145/VNote/internal/identity"
	"github.com/pxh52013145/VNote/internal/note"
	"github.com/pxh52013145/VNote/pkg/srt"
)

// Archive entry names, in the order they are written.
const (
	MetaName       = "meta.json"
	AudioName      = "audio.json"
	TranscriptName = "transcript.json"
	SRTName        = "transcript.srt"
	NoteName       = "note.md"
)

// zipEpoch is the earliest timestamp representable in the zip format.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Input holds everything that goes into an archive. Audio and Transcript
// are kept as decoded JSON objects rather than typed structs so unknown
// fields written by other devices survive a rebuild unchanged.
type Input struct {
	SourceKey    string
	SyncID       string
	NoteMarkdown string
	Audio        map[string]any
	Transcript   map[string]any

	// ExtraMeta is merged into meta.json at the top level, e.g. the
	// originating generate request under "request".
	ExtraMeta map[string]any

	// Merge caps for the derived SRT entry. Zero values fall back to
	// the srt package defaults.
	MaxSRTChars   int
	MaxSRTSeconds int
}

// Build assembles the archive. Empty parts are omitted, and meta.json
// records which parts are present along with their SHA-256 digests.
func Build(in Input) ([]byte, error) {
	noteBytes := NoteBytes(in.NoteMarkdown)

	var audioBytes []byte
	if len(in.Audio) > 0 {
		b, err := CanonicalJSON(in.Audio)
		if err != nil {
			return nil, fmt.Errorf("encoding audio meta: %w", err)
		}
		audioBytes = b
	}

	var transcriptBytes, srtBytes []byte
	if len(in.Transcript) > 0 {
		b, err := CanonicalJSON(in.Transcript)
		if err != nil {
			return nil, fmt.Errorf("encoding transcript: %w", err)
		}
		transcriptBytes = b

		if s := transcriptSRT(in.Transcript, in.MaxSRTChars, in.MaxSRTSeconds); strings.TrimSpace(s) != "" {
			srtBytes = []byte(s)
		}
	}

	contentSHA := map[string]string{}
	if len(noteBytes) > 0 {
		contentSHA["note_md"] = SHA256Hex(noteBytes)
	}
	if len(audioBytes) > 0 {
		contentSHA["audio_json"] = SHA256Hex(audioBytes)
	}
	if len(transcriptBytes) > 0 {
		contentSHA["transcript_json"] = SHA256Hex(transcriptBytes)
	}
	if len(srtBytes) > 0 {
		contentSHA["transcript_srt"] = SHA256Hex(srtBytes)
	}

	// created_at_ms stays null when the key carries no usable timestamp.
	var createdAt any
	if ms := identity.CreatedAtMs(in.SourceKey); ms > 0 {
		createdAt = ms
	}

	meta := map[string]any{
		"version":       1,
		"source_key":    in.SourceKey,
		"sync_id":       in.SyncID,
		"created_at_ms": createdAt,
		"files": map[string]bool{
			"note_md":         len(noteBytes) > 0,
			"transcript_json": len(transcriptBytes) > 0,
			"transcript_srt":  len(srtBytes) > 0,
			"audio_json":      len(audioBytes) > 0,
		},
		"content_sha256": contentSHA,
	}
	for k, v := range in.ExtraMeta {
		meta[k] = v
	}

	metaBytes, err := CanonicalJSON(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding bundle meta: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := []struct {
		name string
		data []byte
	}{
		{MetaName, metaBytes},
		{AudioName, audioBytes},
		{TranscriptName, transcriptBytes},
		{SRTName, srtBytes},
		{NoteName, noteBytes},
	}
	for _, e := range entries {
		if e.name != MetaName && len(e.data) == 0 {
			continue
		}
		hdr := &zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing bundle: %w", err)
	}

	return buf.Bytes(), nil
}

// NoteBytes normalizes note markdown for hashing and archiving: a leading
// BOM is stripped, and blank content collapses to no bytes at all.
func NoteBytes(markdown string) []byte {
	text := markdown
	for strings.HasPrefix(text, "\uFEFF") {
		text = strings.TrimPrefix(text, "\uFEFF")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []byte(text)
}

// CanonicalJSON encodes v with sorted object keys, two-space indent, and
// no HTML escaping. The result has no trailing newline. All JSON parts of
// a bundle, and every hash over JSON content, go through this encoding.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	// Round-trip through a generic value so keys sort regardless of the
	// input's Go type. UseNumber keeps large timestamps verbatim.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// transcriptSRT derives the .srt entry from a transcript payload. Short
// segments are merged into capped windows so the cue count stays
// manageable; a transcript with no usable segments falls back to a single
// zero-length cue holding the full text.
func transcriptSRT(payload map[string]any, maxChars, maxSeconds int) string {
	tr := note.TranscriptFromMap(payload)
	if len(tr.Segments) == 0 {
		fullText := strings.TrimSpace(tr.FullText)
		if fullText == "" {
			return ""
		}
		return "1\n00:00:00,000 --> 00:00:00,000\n" + fullText + "\n"
	}

	segs := make([]srt.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		segs = append(segs, srt.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}

	return srt.Render(srt.Merge(segs, maxChars, maxSeconds))
}
