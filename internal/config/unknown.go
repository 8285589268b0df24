package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each config section to its valid keys.
var knownKeys = map[string][]string{
	"server":  {"addr", "pid_file", "shutdown_timeout"},
	"library": {"dir", "state_dir"},
	"log":     {"level", "file", "format", "max_size_mb", "max_backups", "max_age_days"},
	"minio": {"endpoint", "access_key", "secret_key", "secure", "region",
		"bucket_prefix", "object_prefix", "tombstone_prefix"},
	"dify": {"base_url", "dataset_id", "note_dataset_id", "transcript_dataset_id",
		"service_api_key", "app_api_key", "app_user", "indexing_technique", "timeout"},
	"ingest": {"workers", "queue_size", "auto_bundle", "auto_dify",
		"merge_max_chars", "merge_max_seconds"},
}

// knownSections is the sorted list of section names, for suggestions when
// the section itself is misspelled.
var knownSections = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	sort.Strings(sections)

	return sections
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	// Report each unknown section once, no matter how many keys it holds.
	reportedSections := map[string]bool{}

	for _, key := range undecoded {
		parts := strings.SplitN(key.String(), ".", 2)

		section := parts[0]
		keys, sectionKnown := knownKeys[section]

		switch {
		case !sectionKnown:
			if !reportedSections[section] {
				reportedSections[section] = true
				errs = append(errs, unknownKeyError("section", section, knownSections))
			}
		case len(parts) > 1:
			errs = append(errs, unknownKeyError(
				fmt.Sprintf("key in [%s]", section), parts[1], keys))
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError builds a descriptive error, optionally suggesting the
// closest known name.
func unknownKeyError(kind, name string, known []string) error {
	if suggestion := closestMatch(name, known); suggestion != "" {
		return fmt.Errorf("unknown config %s %q — did you mean %q?", kind, name, suggestion)
	}

	return fmt.Errorf("unknown config %s %q", kind, name)
}

// closestMatch finds the closest known name by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using the
// single-row optimization.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
