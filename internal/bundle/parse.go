package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Meta is the decoded meta.json of an archive. SourceKey and SyncID are
// trimmed; CreatedAtMs is 0 when the archive recorded null.
type Meta struct {
	Version     int
	SourceKey   string
	SyncID      string
	CreatedAtMs int64
	Files       map[string]bool
	ContentSHA  map[string]string

	// Request carries the originating generate request when the pushing
	// device embedded one.
	Request map[string]any
}

// Bundle is the decoded content of an archive. Absent parts stay at their
// zero values; readers tolerate archives written by older devices that
// omitted entries or the meta file entirely.
type Bundle struct {
	Meta         Meta
	MetaRaw      map[string]any
	NoteMarkdown string
	Audio        map[string]any
	Transcript   map[string]any
	SRT          string
}

// Parse decodes an archive produced by Build (or by any other device
// following the same layout). Missing entries are tolerated; a corrupt
// zip or malformed JSON part is an error.
func Parse(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening bundle zip: %w", err)
	}

	members := map[string][]byte{}
	for _, f := range zr.File {
		switch f.Name {
		case MetaName, AudioName, TranscriptName, SRTName, NoteName:
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", f.Name, err)
			}
			raw, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f.Name, err)
			}
			members[f.Name] = raw
		}
	}

	b := &Bundle{
		NoteMarkdown: string(members[NoteName]),
		SRT:          string(members[SRTName]),
	}

	metaRaw, err := decodeObject(members[MetaName])
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", MetaName, err)
	}
	b.MetaRaw = metaRaw
	b.Meta = metaFromMap(metaRaw)

	if b.Audio, err = decodeObject(members[AudioName]); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", AudioName, err)
	}
	if b.Transcript, err = decodeObject(members[TranscriptName]); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", TranscriptName, err)
	}

	return b, nil
}

// decodeObject decodes a JSON object, mapping absent or blank input to an
// empty map so callers never branch on nil.
func decodeObject(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}

	return m, nil
}

func metaFromMap(m map[string]any) Meta {
	meta := Meta{
		SourceKey:  strings.TrimSpace(stringField(m, "source_key")),
		SyncID:     strings.TrimSpace(stringField(m, "sync_id")),
		Files:      map[string]bool{},
		ContentSHA: map[string]string{},
	}

	if v, ok := m["version"].(float64); ok {
		meta.Version = int(v)
	}
	if v, ok := m["created_at_ms"].(float64); ok && v > 0 {
		meta.CreatedAtMs = int64(v)
	}
	if files, ok := m["files"].(map[string]any); ok {
		for k, v := range files {
			if b, ok := v.(bool); ok {
				meta.Files[k] = b
			}
		}
	}
	if hashes, ok := m["content_sha256"].(map[string]any); ok {
		for k, v := range hashes {
			if s, ok := v.(string); ok {
				meta.ContentSHA[k] = s
			}
		}
	}
	if req, ok := m["request"].(map[string]any); ok && len(req) > 0 {
		meta.Request = req
	}

	return meta
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
