package objstore

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	bucketUnsafe   = regexp.MustCompile(`[^a-z0-9.-]+`)
	bucketDashRuns = regexp.MustCompile(`-{2,}`)
)

const fallbackBucket = "ragvideo-default"

// BucketNameForProfile derives the S3 bucket for a profile. The result
// obeys the S3 naming rules (3-63 chars, lowercase letters, digits, '.'
// and '-', alphanumeric first and last char). Non-empty profile names get
// a SHA-1 suffix so two profiles never collide even when they slugify to
// the same value (e.g. Chinese names, or names differing only in
// punctuation).
//
// The derivation is shared with the companion tooling and must stay
// byte-for-byte compatible: a renamed algorithm would orphan every
// existing bucket.
func BucketNameForProfile(profileName, prefix string) string {
	original := strings.TrimSpace(profileName)

	slug := strings.ToLower(original)
	if slug == "" {
		slug = "default"
	}
	slug = slugify(slug, "default")

	base := slugify(strings.ToLower(strings.TrimSpace(prefix))+slug, fallbackBucket)

	suffix := ""
	if original != "" {
		sum := sha1.Sum([]byte(original))
		suffix = "-" + hex.EncodeToString(sum[:])[:8]
	}

	// Both base and full are ASCII after slugify, so byte slicing is safe.
	maxLen := 63 - len(suffix)
	if maxLen < 3 {
		maxLen = 3
	}
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	base = strings.Trim(base, "-.")
	if base == "" {
		base = fallbackBucket
	}

	full := slugify(base+suffix, fallbackBucket)

	if len(full) > 63 {
		full = full[:63]
	}
	if len(full) < 3 {
		full = (full + "-bin")[:3]
	}
	if !isAlnum(full[0]) {
		full = "b" + full[1:]
	}
	if !isAlnum(full[len(full)-1]) {
		full = full[:len(full)-1] + "0"
	}

	return full
}

// slugify replaces disallowed characters with dashes, collapses dash
// runs, and trims leading/trailing separators, falling back when nothing
// survives.
func slugify(s, fallback string) string {
	s = bucketUnsafe.ReplaceAllString(s, "-")
	s = bucketDashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return fallback
	}

	return s
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
