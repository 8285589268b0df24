package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/sync"
)

var (
	flagCopyFrom       string
	flagCopyNote       bool
	flagCopyTranscript bool
	flagCopyDifyDocs   bool
	flagCopyCreatedMs  int64
)

func newCopyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy <source-key>",
		Short: "Duplicate an item under a fresh identity",
		Long: `Duplicate an item under a new created-at timestamp: build the bundle
under the new identity, upload it, and write the local artifacts. RAG
documents are only ever created for the copy, never updated.`,
		Args: cobra.ExactArgs(1),
		RunE: runCopy,
	}

	cmd.Flags().StringVar(&flagCopyFrom, "from", "local", "content source: local or remote")
	cmd.Flags().BoolVar(&flagCopyNote, "note", true, "include the note")
	cmd.Flags().BoolVar(&flagCopyTranscript, "transcript", true, "include the transcript")
	cmd.Flags().BoolVar(&flagCopyDifyDocs, "dify-docs", false, "create RAG documents for the copy")
	cmd.Flags().Int64Var(&flagCopyCreatedMs, "created-at-ms", 0, "timestamp for the new identity (default: now)")

	return cmd
}

func runCopy(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	engine := newEngine(newLibraryStore(logger), nil, nil, logger)

	result, err := engine.Copy(cmd.Context(), sync.CopyRequest{
		SourceKey:         args[0],
		FromSide:          flagCopyFrom,
		IncludeNote:       flagCopyNote,
		IncludeTranscript: flagCopyTranscript,
		CreateDifyDocs:    flagCopyDifyDocs,
		NewCreatedAtMs:    flagCopyCreatedMs,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(result)
	}

	statusf("Copied to %s (task %s)\n", result.SourceKey, result.TaskID)
	if result.DifyError != "" {
		fmt.Printf("Warning: RAG document creation failed: %s\n", result.DifyError)
	}

	return nil
}
