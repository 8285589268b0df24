package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/sync"
)

var flagScanDaemon bool

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Reconcile local library, object store, and RAG datasets",
		Long: `Join the local library, the object-store bundles, and the RAG datasets
into one classified item list for the active profile, and persist it as the
profile's snapshot.

With --daemon, a running 'vnote serve' is asked to scan instead (SIGHUP).`,
		RunE: runScan,
	}

	cmd.Flags().BoolVar(&flagScanDaemon, "daemon", false, "signal the running service to scan")

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	if flagScanDaemon {
		if err := sendSIGHUP(pidFilePath()); err != nil {
			return err
		}

		statusf("Scan requested from the running service.\n")

		return nil
	}

	logger := buildLogger()

	snap, err := openSnapshot(logger)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snap.Close()

	engine := newEngine(newLibraryStore(logger), snap, nil, logger)

	result, err := engine.Scan(cmd.Context())
	if err != nil {
		return err
	}

	return printScanResult(result)
}

// printScanResult renders a scan or cached-items result: JSON with --json,
// otherwise a profile header plus the item table.
func printScanResult(res *sync.ScanResult) error {
	if flagJSON {
		return printJSON(res)
	}

	fmt.Printf("Profile: %s\n", res.Profile)
	if res.MinioBucket != "" {
		fmt.Printf("Bucket:  %s\n", res.MinioBucket)
	}
	if res.LastScannedAt != "" {
		fmt.Printf("Scanned: %s\n", res.LastScannedAt)
	}

	if len(res.Items) == 0 {
		fmt.Println("No items.")
		return nil
	}

	fmt.Println()
	printItemTable(res.Items)

	return nil
}

func printItemTable(items []sync.Item) {
	headers := []string{"STATUS", "TITLE", "PLATFORM", "VIDEO", "CREATED", "SOURCE_KEY"}
	rows := make([][]string, 0, len(items))

	for i := range items {
		it := &items[i]
		title := it.Title
		if title == "" {
			title = "(untitled)"
		}

		rows = append(rows, []string{
			string(it.Status),
			truncate(title, 40),
			it.Platform,
			it.VideoID,
			formatMs(it.CreatedAtMs),
			it.SourceKey,
		})
	}

	printTable(os.Stdout, headers, rows)
}
