package dify

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pxh52013145/VNote/internal/note"
	"github.com/pxh52013145/VNote/pkg/srt"
)

// Dataset document name suffixes. Note and transcript documents derived
// from the same library item share a base name and differ only by suffix,
// which also keeps them separable when both live in one dataset.
const (
	NoteDocSuffix       = " (note)"
	TranscriptDocSuffix = " (transcript)"
)

// Tracking parameters stripped from [SOURCE] URLs. Any key with a "utm_"
// prefix (case-insensitive) is stripped as well.
var dropSourceQueryKeys = map[string]struct{}{
	"vd_source":        {},
	"spm_id_from":      {},
	"from":             {},
	"share_source":     {},
	"share_medium":     {},
	"share_plat":       {},
	"share_session_id": {},
	"share_tag":        {},
}

// FormatTimestamp renders whole seconds as "HH:MM:SS", or "MM:SS" when
// under an hour. Negative offsets clamp to zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}

	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// CleanSourceURL strips tracking query parameters and the fragment from an
// http(s) URL, preserving parameter order and blank values. Non-http(s) and
// unparsable inputs pass through unchanged.
func CleanSourceURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return trimmed
	}

	var kept []string

	for _, field := range strings.Split(u.RawQuery, "&") {
		if field == "" {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(field, "=")

		key := unescapeQuery(rawKey)
		if key == "" {
			continue
		}

		if _, drop := dropSourceQueryKeys[key]; drop {
			continue
		}

		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			continue
		}

		kept = append(kept, url.QueryEscape(key)+"="+url.QueryEscape(unescapeQuery(rawValue)))
	}

	u.RawQuery = strings.Join(kept, "&")
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}

// unescapeQuery decodes one query token, keeping it verbatim when the
// escaping is malformed.
func unescapeQuery(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}

	return decoded
}

// DocumentName builds the dataset document base name
// "{title} [{platform}:{video_id}:{created_at_ms}]". The title is
// NFC-normalized so later exact-name lookups are stable; blank titles fall
// back to "Untitled" and blank video ids to "unknown". A non-positive
// createdAtMs is omitted from the tag.
func DocumentName(audio note.AudioMeta, platform string, createdAtMs int64) string {
	title := strings.TrimSpace(norm.NFC.String(audio.Title))
	if title == "" {
		title = "Untitled"
	}

	videoID := strings.TrimSpace(audio.VideoID)
	if videoID == "" {
		videoID = "unknown"
	}

	tag := platform + ":" + videoID
	if createdAtMs > 0 {
		tag += ":" + strconv.FormatInt(createdAtMs, 10)
	}

	return title + " [" + tag + "]"
}

// NoteDocumentText builds the note document body: the identity header
// followed by the markdown. The result always ends with a single newline.
func NoteDocumentText(audio note.AudioMeta, platform, sourceURL, noteMarkdown string) string {
	parts := documentHeader(audio, platform, sourceURL)

	if md := strings.TrimSpace(noteMarkdown); md != "" {
		parts = append(parts, md, "")
	}

	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

// TranscriptDocumentText builds the transcript document body: the identity
// header followed by one "[VID=…][PLATFORM=…][TIME=start-end] text" line per
// merged segment window. Merge caps keep chunk counts manageable for the
// embedding backend; non-positive caps fall back to the defaults.
func TranscriptDocumentText(audio note.AudioMeta, platform, sourceURL string, transcript note.Transcript, maxChars, maxSeconds int) string {
	parts := documentHeader(audio, platform, sourceURL)

	segments := make([]srt.Segment, 0, len(transcript.Segments))
	for _, seg := range transcript.Segments {
		segments = append(segments, srt.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}

	for _, seg := range srt.Merge(segments, maxChars, maxSeconds) {
		parts = append(parts, fmt.Sprintf("[VID=%s][PLATFORM=%s][TIME=%s-%s] %s",
			audio.VideoID, platform, FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Text), "")
	}

	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

func documentHeader(audio note.AudioMeta, platform, sourceURL string) []string {
	return []string{
		"[TITLE]=" + audio.Title,
		"[PLATFORM]=" + platform,
		"[VIDEO_ID]=" + audio.VideoID,
		"[SOURCE]=" + CleanSourceURL(sourceURL),
		"",
	}
}

// SyncTag is the identity parsed from a dataset document name tail such as
// "<title> [platform:video_id]" or "<title> [platform:video_id:ms]".
// CreatedAtMs is nil for legacy names whose tag carries no timestamp.
type SyncTag struct {
	Title       string
	Platform    string
	VideoID     string
	CreatedAtMs *int64
}

// ParseSyncTag extracts the bracketed identity tag from a document name.
// The last "[…]" pair wins, so suffixes like " (note)" after the tag are
// tolerated. Returns false when no well-formed tag is present.
func ParseSyncTag(name string) (SyncTag, bool) {
	n := strings.TrimSpace(name)

	right := strings.LastIndex(n, "]")
	if right < 0 {
		return SyncTag{}, false
	}

	left := strings.LastIndex(n[:right], "[")
	if left < 0 {
		return SyncTag{}, false
	}

	parts := strings.Split(strings.TrimSpace(n[left+1:right]), ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) < 2 {
		return SyncTag{}, false
	}

	tag := SyncTag{
		Title:    strings.TrimSpace(n[:left]),
		Platform: parts[0],
		VideoID:  parts[1],
	}
	if tag.Platform == "" || tag.VideoID == "" {
		return SyncTag{}, false
	}

	if len(parts) >= 3 && isDigits(parts[2]) {
		if ms, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			tag.CreatedAtMs = &ms
		}
	}

	return tag, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
