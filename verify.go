package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/identity"
	"github.com/pxh52013145/VNote/internal/objstore"
)

// errVerifyMismatch signals verification failure to main() for the exit
// code; the report is already printed when it is returned.
var errVerifyMismatch = errors.New("bundle verification failed")

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <source-key>",
		Short: "Verify a remote bundle's integrity",
		Long: `Download the item's bundle and check it: the advertised SHA-256 against
the actual bytes, the embedded identity against the source key, and every
per-entry content hash recorded in meta.json.

Exit code 0 if the bundle verifies; exit code 1 on any mismatch.`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}
}

// verifyMismatch is one failed check.
type verifyMismatch struct {
	Check    string `json:"check"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// verifyReport is the outcome of one bundle verification.
type verifyReport struct {
	SourceKey  string           `json:"source_key"`
	SyncID     string           `json:"sync_id"`
	Bucket     string           `json:"bucket"`
	ObjectKey  string           `json:"object_key"`
	Size       int64            `json:"size"`
	BundleSHA  string           `json:"bundle_sha256"`
	Entries    []string         `json:"entries"`
	Mismatches []verifyMismatch `json:"mismatches"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	sourceKey := strings.TrimSpace(args[0])
	if _, _, _, err := identity.ParseSourceKey(sourceKey); err != nil {
		return err
	}
	syncID := identity.ComputeSyncID(sourceKey)

	store, err := objstore.New(resolvedCfg.Minio)
	if err != nil {
		return err
	}

	profileName, _, err := newProfileRegistry(logger).Get()
	if err != nil {
		return fmt.Errorf("reading profile registry: %w", err)
	}
	bucket := objstore.BucketNameForProfile(profileName, resolvedCfg.Minio.BucketPrefix)

	ctx := cmd.Context()
	key := store.BundleKey(syncID)

	stat, err := store.Stat(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("checking bundle %s: %w", key, err)
	}
	if stat == nil {
		return fmt.Errorf("no bundle found for %s (bucket %s, key %s)", sourceKey, bucket, key)
	}

	data, err := store.GetBytes(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("downloading bundle: %w", err)
	}

	report := &verifyReport{
		SourceKey: sourceKey,
		SyncID:    syncID,
		Bucket:    bucket,
		ObjectKey: key,
		Size:      int64(len(data)),
		BundleSHA: bundle.SHA256Hex(data),
	}

	if advertised := objstore.MetaValue(stat.Metadata, "bundle-sha256"); advertised != "" && advertised != report.BundleSHA {
		report.Mismatches = append(report.Mismatches, verifyMismatch{
			Check:    "bundle-sha256 metadata",
			Expected: advertised,
			Actual:   report.BundleSHA,
		})
	}

	verifyArchive(report, data, sourceKey, syncID)

	if flagJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printVerifyReport(report)
	}

	if len(report.Mismatches) > 0 {
		return errVerifyMismatch
	}

	return nil
}

// verifyArchive checks the embedded identity and re-hashes every entry
// against the digests meta.json recorded for it.
func verifyArchive(report *verifyReport, data []byte, sourceKey, syncID string) {
	b, err := bundle.Parse(data)
	if err != nil {
		report.Mismatches = append(report.Mismatches, verifyMismatch{
			Check:  "bundle parse",
			Actual: err.Error(),
		})

		return
	}

	if b.Meta.SourceKey != sourceKey {
		report.Mismatches = append(report.Mismatches, verifyMismatch{
			Check:    "meta source_key",
			Expected: sourceKey,
			Actual:   b.Meta.SourceKey,
		})
	}
	if b.Meta.SyncID != syncID {
		report.Mismatches = append(report.Mismatches, verifyMismatch{
			Check:    "meta sync_id",
			Expected: syncID,
			Actual:   b.Meta.SyncID,
		})
	}

	// Hash the raw entry bytes; re-encoding decoded JSON could mask a
	// corrupted archive that still parses.
	hashKeys := map[string]string{
		bundle.NoteName:       "note_md",
		bundle.AudioName:      "audio_json",
		bundle.TranscriptName: "transcript_json",
		bundle.SRTName:        "transcript_srt",
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		report.Mismatches = append(report.Mismatches, verifyMismatch{
			Check:  "zip open",
			Actual: err.Error(),
		})

		return
	}

	for _, f := range zr.File {
		report.Entries = append(report.Entries, f.Name)

		metaKey, ok := hashKeys[f.Name]
		if !ok {
			continue
		}

		expected := b.Meta.ContentSHA[metaKey]
		if expected == "" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			report.Mismatches = append(report.Mismatches, verifyMismatch{
				Check:  f.Name + " read",
				Actual: err.Error(),
			})

			continue
		}

		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			report.Mismatches = append(report.Mismatches, verifyMismatch{
				Check:  f.Name + " read",
				Actual: err.Error(),
			})

			continue
		}

		if actual := bundle.SHA256Hex(raw); actual != expected {
			report.Mismatches = append(report.Mismatches, verifyMismatch{
				Check:    f.Name + " content hash",
				Expected: expected,
				Actual:   actual,
			})
		}
	}
}

func printVerifyReport(report *verifyReport) {
	fmt.Printf("Bundle:  %s/%s (%s)\n", report.Bucket, report.ObjectKey, formatSize(report.Size))
	fmt.Printf("SHA-256: %s\n", report.BundleSHA)
	fmt.Printf("Entries: %s\n", strings.Join(report.Entries, ", "))

	if len(report.Mismatches) == 0 {
		fmt.Println("Bundle verified successfully.")
		return
	}

	fmt.Printf("Mismatches: %d\n\n", len(report.Mismatches))

	headers := []string{"CHECK", "EXPECTED", "ACTUAL"}
	rows := make([][]string, len(report.Mismatches))

	for i := range report.Mismatches {
		m := &report.Mismatches[i]
		rows[i] = []string{m.Check, m.Expected, m.Actual}
	}

	printTable(os.Stdout, headers, rows)
}
