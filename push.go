package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/sync"
)

var (
	flagPushNote       bool
	flagPushTranscript bool
	flagPushDify       bool
)

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <item-id>",
		Short: "Upload a local item's bundle and RAG documents",
		Long: `Build the item's bundle, upload it to the object store, and create or
update its RAG documents. Unchanged bundles are skipped; an existing
tombstone is removed first so a pushed item is restored.`,
		Args: cobra.ExactArgs(1),
		RunE: runPush,
	}

	cmd.Flags().BoolVar(&flagPushNote, "note", true, "include the note document")
	cmd.Flags().BoolVar(&flagPushTranscript, "transcript", true, "include the transcript document")
	cmd.Flags().BoolVar(&flagPushDify, "dify", true, "create/update RAG documents")

	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	engine := newEngine(newLibraryStore(logger), nil, nil, logger)

	result, err := engine.Push(cmd.Context(), sync.PushRequest{
		ItemID:            args[0],
		IncludeNote:       flagPushNote,
		IncludeTranscript: flagPushTranscript,
		UpdateDify:        flagPushDify,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(result)
	}

	statusf("Pushed %s\n", result.SourceKey)
	statusf("  bundle: %s/%s (sha256 %s)\n", result.Minio.Bucket, result.Minio.ObjectKey, result.Minio.BundleSHA256)
	if result.Dify.Note != nil {
		statusf("  note doc: %s\n", result.Dify.Note.DocumentID)
	}
	if result.Dify.Transcript != nil {
		statusf("  transcript doc: %s\n", result.Dify.Transcript.DocumentID)
	}
	if result.DifyError != "" {
		fmt.Printf("Warning: RAG update failed: %s\n", result.DifyError)
	}

	return nil
}
