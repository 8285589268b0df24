package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newItemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "items",
		Short: "List items from the last scan snapshot",
		Long: `List the active profile's items from the last scan snapshot, fused with
a fresh local scan. Remote facts may be stale until the next 'vnote scan';
local flags are always current.`,
		RunE: runItems,
	}
}

func runItems(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	snap, err := openSnapshot(logger)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snap.Close()

	engine := newEngine(newLibraryStore(logger), snap, nil, logger)

	result, err := engine.CachedItems(cmd.Context())
	if err != nil {
		return err
	}

	return printScanResult(result)
}
