// Package note defines the artifacts produced for a single video note:
// the downloaded audio metadata, the transcript, the rendered markdown,
// and the request that produced them. It also provides tolerant readers
// that rebuild these types from JSON payloads written by earlier
// versions, where fields may be missing or loosely typed.
package note

import (
	"encoding/json"
	"strconv"
)

// Segment is one span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the full transcription of a video's audio track.
type Transcript struct {
	Language string         `json:"language,omitempty"`
	FullText string         `json:"full_text"`
	Segments []Segment      `json:"segments"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// AudioMeta describes the media fetched for a task. Platform and
// VideoID identify the source video and anchor the item's sync
// identity.
type AudioMeta struct {
	FilePath  string         `json:"file_path"`
	Title     string         `json:"title"`
	Duration  float64        `json:"duration"`
	CoverURL  string         `json:"cover_url,omitempty"`
	Platform  string         `json:"platform"`
	VideoID   string         `json:"video_id"`
	RawInfo   map[string]any `json:"raw_info,omitempty"`
	VideoPath string         `json:"video_path,omitempty"`
}

// RequestMeta records the generate request that produced a note, so the
// UI can show model and style after a restart and pushes can embed the
// request in the bundle.
type RequestMeta struct {
	VideoURL           string   `json:"video_url"`
	Platform           string   `json:"platform"`
	Quality            string   `json:"quality"`
	Link               bool     `json:"link"`
	Screenshot         bool     `json:"screenshot"`
	ModelName          string   `json:"model_name"`
	ProviderID         string   `json:"provider_id"`
	Format             []string `json:"format"`
	Style              string   `json:"style"`
	Extras             string   `json:"extras"`
	VideoUnderstanding bool     `json:"video_understanding"`
	VideoInterval      int      `json:"video_interval"`
	GridSize           []int    `json:"grid_size"`
}

// Result is the complete outcome of a generate task, persisted as the
// task's result file.
type Result struct {
	Markdown   string      `json:"markdown"`
	Transcript *Transcript `json:"transcript"`
	AudioMeta  *AudioMeta  `json:"audio_meta"`
}

// TranscriptFromMap rebuilds a Transcript from a decoded JSON object.
// Missing or mistyped fields degrade to zero values rather than
// failing; segments with unusable timestamps are dropped.
func TranscriptFromMap(p map[string]any) Transcript {
	t := Transcript{
		Language: asString(p["language"]),
		FullText: asString(p["full_text"]),
	}
	if raw, ok := p["raw"].(map[string]any); ok {
		t.Raw = raw
	}
	list, _ := p["segments"].([]any)
	for _, el := range list {
		seg, ok := el.(map[string]any)
		if !ok {
			continue
		}
		start, ok := floatOr(seg["start"], 0)
		if !ok {
			continue
		}
		end, ok := floatOr(seg["end"], start)
		if !ok {
			continue
		}
		t.Segments = append(t.Segments, Segment{
			Start: start,
			End:   end,
			Text:  asString(seg["text"]),
		})
	}
	return t
}

// AudioMetaFromMap rebuilds an AudioMeta from a decoded JSON object.
func AudioMetaFromMap(p map[string]any) *AudioMeta {
	duration, _ := asFloat(p["duration"])
	m := &AudioMeta{
		FilePath:  asString(p["file_path"]),
		Title:     asString(p["title"]),
		Duration:  duration,
		CoverURL:  asString(p["cover_url"]),
		Platform:  asString(p["platform"]),
		VideoID:   asString(p["video_id"]),
		VideoPath: asString(p["video_path"]),
	}
	if raw, ok := p["raw_info"].(map[string]any); ok {
		m.RawInfo = raw
	}
	return m
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// floatOr coerces v to a float64, returning fallback when v is absent.
// A present but uncoercible value reports ok=false.
func floatOr(v any, fallback float64) (float64, bool) {
	if v == nil {
		return fallback, true
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return f, true
}
