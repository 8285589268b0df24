package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/sync"
)

var (
	flagRemoveNoteDocID       string
	flagRemoveTranscriptDocID string
	flagRemoveKeepDify        bool
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <source-key>",
		Short: "Tombstone a remote item",
		Long: `Write a tombstone for the item in the object store, marking it logically
deleted so it cannot be pulled back by accident. Local files are untouched;
a later push removes the tombstone again.

RAG documents are only deleted when their ids are passed explicitly; 'vnote
items' shows them.`,
		Args: cobra.ExactArgs(1),
		RunE: runRemove,
	}

	cmd.Flags().StringVar(&flagRemoveNoteDocID, "note-doc-id", "", "RAG note document id to delete")
	cmd.Flags().StringVar(&flagRemoveTranscriptDocID, "transcript-doc-id", "", "RAG transcript document id to delete")
	cmd.Flags().BoolVar(&flagRemoveKeepDify, "keep-dify", false, "keep RAG documents even when ids are given")

	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	engine := newEngine(newLibraryStore(logger), nil, nil, logger)

	deleteDify := !flagRemoveKeepDify && (flagRemoveNoteDocID != "" || flagRemoveTranscriptDocID != "")

	result, err := engine.DeleteRemote(cmd.Context(), sync.DeleteRemoteRequest{
		SourceKey:                args[0],
		DeleteDify:               deleteDify,
		DifyNoteDocumentID:       flagRemoveNoteDocID,
		DifyTranscriptDocumentID: flagRemoveTranscriptDocID,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(result)
	}

	statusf("Tombstoned %s\n", result.SourceKey)
	if result.DifyError != "" {
		fmt.Printf("Warning: RAG document deletion failed: %s\n", result.DifyError)
	}

	return nil
}
