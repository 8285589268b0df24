package main

import (
	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/sync"
)

var flagPullOverwrite bool

func newPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull <source-key>",
		Short: "Materialize a remote bundle into the local library",
		Long: `Download the item's bundle from the object store and write its artifacts
into the local library. Without --overwrite, existing non-empty local files
are left untouched and the pull fails if nothing could be written.`,
		Args: cobra.ExactArgs(1),
		RunE: runPull,
	}

	cmd.Flags().BoolVar(&flagPullOverwrite, "overwrite", false, "overwrite existing local files")

	return cmd
}

func runPull(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	engine := newEngine(newLibraryStore(logger), nil, nil, logger)

	result, err := engine.Pull(cmd.Context(), sync.PullRequest{
		SourceKey: args[0],
		Overwrite: flagPullOverwrite,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(result)
	}

	statusf("Pulled %s into task %s\n", result.SourceKey, result.TaskID)

	return nil
}
