package library

import (
	"os"
	"strings"
)

// Payloads carries the three note payloads for bundling and RAG ingestion.
// Audio and Transcript are nil when no payload exists anywhere.
type Payloads struct {
	NoteMarkdown string
	Audio        map[string]any
	Transcript   map[string]any
}

// Payloads reads an item's markdown, audio and transcript, preferring the
// standalone artifacts and falling back to the result document for whatever
// is missing. Legacy results may store markdown as a version list; the first
// version wins.
func (s *Store) Payloads(it *Item) *Payloads {
	p := &Payloads{}

	if it.AudioPath != "" {
		p.Audio = readJSONMap(it.AudioPath)
	}

	if it.TranscriptPath != "" {
		p.Transcript = readJSONMap(it.TranscriptPath)
	}

	if it.MarkdownPath != "" {
		if data, err := os.ReadFile(it.MarkdownPath); err == nil {
			p.NoteMarkdown = string(data)
		}
	}

	if p.Audio != nil && p.Transcript != nil && strings.TrimSpace(p.NoteMarkdown) != "" {
		return p
	}

	res := readJSONMap(it.ResultPath)
	if res == nil {
		return p
	}

	if p.Audio == nil {
		if audio, ok := res["audio_meta"].(map[string]any); ok {
			p.Audio = audio
		}
	}

	if p.Transcript == nil {
		if transcript, ok := res["transcript"].(map[string]any); ok {
			p.Transcript = transcript
		}
	}

	if strings.TrimSpace(p.NoteMarkdown) == "" {
		p.NoteMarkdown = markdownFromResult(res)
	}

	return p
}

// markdownFromResult extracts the markdown string from a result document,
// accepting the legacy list-of-versions form.
func markdownFromResult(res map[string]any) string {
	switch md := res["markdown"].(type) {
	case string:
		return md
	case []any:
		if len(md) == 0 {
			return ""
		}
		switch first := md[0].(type) {
		case string:
			return first
		case map[string]any:
			if content, ok := first["content"].(string); ok {
				return content
			}
		}
	}

	return ""
}

// RequestMeta returns the original generation request stored with the item,
// checking the result document first and the status document second.
func (s *Store) RequestMeta(it *Item) map[string]any {
	for _, p := range []string{it.ResultPath, it.StatusPath} {
		payload := readJSONMap(p)
		if payload == nil {
			continue
		}

		if request, ok := payload["request"].(map[string]any); ok {
			return request
		}
	}

	return nil
}
