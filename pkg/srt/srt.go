// Package srt renders SubRip subtitle text from transcript segments and
// provides the merge windowing used to keep cue/chunk counts manageable.
// The output is deterministic: equal input segments always produce
// byte-equal text.
package srt

import (
	"fmt"
	"strings"
)

// Default merge-window caps. Segments are greedily coalesced until adding
// the next one would exceed either cap.
const (
	DefaultMaxChars   = 900
	DefaultMaxSeconds = 60
)

// Segment is a single timed text span. Start and End are seconds.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// FormatTimestamp renders a millisecond offset as the SubRip
// "HH:MM:SS,mmm" form. Negative offsets clamp to zero.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	hh := ms / 3_600_000
	mm := (ms % 3_600_000) / 60_000
	ss := (ms % 60_000) / 1_000
	mmm := ms % 1_000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hh, mm, ss, mmm)
}

// Merge coalesces adjacent segments into windows of at most maxChars
// characters and maxSeconds duration, preserving order. Empty-text segments
// are dropped. Non-positive caps fall back to the defaults. Window text is
// joined with single spaces; embedded newlines are flattened first.
func Merge(segments []Segment, maxChars, maxSeconds int) []Segment {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	if maxSeconds <= 0 {
		maxSeconds = DefaultMaxSeconds
	}

	var out []Segment

	var (
		open  bool
		cur   Segment
		parts []string
		size  int
	)

	flush := func() {
		if !open {
			return
		}

		cur.Text = strings.Join(parts, " ")
		out = append(out, cur)
		open = false
		parts = nil
		size = 0
	}

	for _, seg := range segments {
		text := strings.TrimSpace(strings.ReplaceAll(seg.Text, "\n", " "))
		if text == "" {
			continue
		}

		end := seg.End
		if end < seg.Start {
			end = seg.Start
		}

		if open {
			nextSize := size + 1 + len(text)
			nextSpan := end - cur.Start
			if nextSize > maxChars || nextSpan > float64(maxSeconds) {
				flush()
			}
		}

		if !open {
			open = true
			cur = Segment{Start: seg.Start, End: end}
			parts = []string{text}
			size = len(text)

			continue
		}

		cur.End = end
		parts = append(parts, text)
		size += 1 + len(text)
	}

	flush()

	return out
}

// Render produces numbered SubRip cues from the given segments. Segments
// with empty text are skipped; their indices are not consumed. The result
// ends with a single trailing newline, or is empty when no cue was written.
func Render(segments []Segment) string {
	var b strings.Builder

	idx := 1

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		end := seg.End
		if end < seg.Start {
			end = seg.Start
		}

		if idx > 1 {
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n",
			idx, FormatTimestamp(int64(seg.Start*1000)), FormatTimestamp(int64(end*1000)), text)
		idx++
	}

	return b.String()
}
