// Package identity defines the logical and physical identity of a library
// item. The logical identity is the source key "{platform}:{video_id}:
// {created_at_ms}"; the physical identity is its SHA-256 hex digest (the
// sync id), used as the object-store base name and as the task directory
// name for items materialized from remote.
//
// This is a leaf package with zero dependencies beyond stdlib crypto.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSourceKey is returned when a source key does not have the
// "{platform}:{video_id}:{created_at_ms}" shape with a positive timestamp.
var ErrInvalidSourceKey = errors.New("identity: invalid source key (expected platform:video_id:created_at_ms)")

// MakeSourceKey renders the canonical identity string for an item.
// Platform and video id are trimmed; the millisecond timestamp is the
// identity's tie-breaker and must never be regenerated for the same
// artifact.
func MakeSourceKey(platform, videoID string, createdAtMs int64) string {
	return fmt.Sprintf("%s:%s:%d", strings.TrimSpace(platform), strings.TrimSpace(videoID), createdAtMs)
}

// ComputeSyncID returns the SHA-256 hex digest (64 chars) of the source key.
func ComputeSyncID(sourceKey string) string {
	sum := sha256.Sum256([]byte(sourceKey))
	return hex.EncodeToString(sum[:])
}

// ParseSourceKey splits a source key back into its components. Video ids
// may themselves contain colons, so the timestamp is taken from the last
// segment and the platform from the first; everything between is the video
// id. The timestamp must be all digits and positive.
func ParseSourceKey(sourceKey string) (platform, videoID string, createdAtMs int64, err error) {
	raw := strings.TrimSpace(sourceKey)
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return "", "", 0, ErrInvalidSourceKey
	}

	tail := strings.TrimSpace(parts[len(parts)-1])
	if tail == "" || !isDigits(tail) {
		return "", "", 0, ErrInvalidSourceKey
	}

	ms, convErr := strconv.ParseInt(tail, 10, 64)
	if convErr != nil || ms <= 0 {
		return "", "", 0, ErrInvalidSourceKey
	}

	platform = strings.TrimSpace(parts[0])
	videoID = strings.TrimSpace(strings.Join(parts[1:len(parts)-1], ":"))
	if platform == "" || videoID == "" {
		return "", "", 0, ErrInvalidSourceKey
	}

	return platform, videoID, ms, nil
}

// CreatedAtMs extracts just the timestamp from a source key, or 0 when no
// positive millisecond tail is present. Unlike ParseSourceKey it does not
// insist on non-empty platform or video id; legacy keys with blank parts
// still carry a usable timestamp.
func CreatedAtMs(sourceKey string) int64 {
	raw := strings.TrimSpace(sourceKey)
	if raw == "" {
		return 0
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return 0
	}

	tail := strings.TrimSpace(parts[len(parts)-1])
	if !isDigits(tail) {
		return 0
	}

	ms, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || ms <= 0 {
		return 0
	}

	return ms
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return len(s) > 0
}
