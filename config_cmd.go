package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := flagConfigPath
			if path == "" {
				path = config.DefaultConfigPath()
			}

			fmt.Println(path)

			return nil
		},
	}
}

// redactedConfig is the printable view of the resolved configuration with
// the object-store secret masked. API keys live in the profile registry,
// not here; 'vnote profile show' masks those.
type redactedConfig struct {
	Server  config.ServerConfig  `json:"server"`
	Library config.LibraryConfig `json:"library"`
	Log     config.LogConfig     `json:"log"`
	Minio   config.MinioConfig   `json:"minio"`
	Dify    config.DifyConfig    `json:"dify"`
	Ingest  config.IngestConfig  `json:"ingest"`
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	view := redactedConfig{
		Server:  resolvedCfg.Server,
		Library: resolvedCfg.Library,
		Log:     resolvedCfg.Log,
		Minio:   resolvedCfg.Minio,
		Dify:    resolvedCfg.Dify,
		Ingest:  resolvedCfg.Ingest,
	}
	if view.Minio.SecretKey != "" {
		view.Minio.SecretKey = "********"
	}
	if view.Dify.ServiceAPIKey != "" {
		view.Dify.ServiceAPIKey = "********"
	}
	if view.Dify.AppAPIKey != "" {
		view.Dify.AppAPIKey = "********"
	}

	if flagJSON {
		return printJSON(view)
	}

	fmt.Printf("[server]\n  addr = %q\n  pid_file = %q\n  shutdown_timeout = %q\n",
		view.Server.Addr, view.Server.PidFile, view.Server.ShutdownTimeout)
	fmt.Printf("[library]\n  dir = %q\n  state_dir = %q\n",
		view.Library.Dir, view.Library.StateDir)
	fmt.Printf("[log]\n  level = %q\n  format = %q\n  file = %q\n",
		view.Log.Level, view.Log.Format, view.Log.File)
	fmt.Printf("[minio]\n  endpoint = %q\n  access_key = %q\n  secret_key = %q\n  secure = %v\n  bucket_prefix = %q\n  object_prefix = %q\n  tombstone_prefix = %q\n",
		view.Minio.Endpoint, view.Minio.AccessKey, view.Minio.SecretKey,
		view.Minio.Secure, view.Minio.BucketPrefix, view.Minio.ObjectPrefix, view.Minio.TombstonePrefix)
	fmt.Printf("[dify]\n  base_url = %q\n  dataset_id = %q\n  note_dataset_id = %q\n  transcript_dataset_id = %q\n  app_user = %q\n  indexing_technique = %q\n  timeout = %q\n",
		view.Dify.BaseURL, view.Dify.DatasetID, view.Dify.NoteDatasetID,
		view.Dify.TranscriptDatasetID, view.Dify.AppUser, view.Dify.IndexingTechnique, view.Dify.Timeout)
	fmt.Printf("[ingest]\n  workers = %d\n  queue_size = %d\n  auto_bundle = %v\n  auto_dify = %q\n  merge_max_chars = %d\n  merge_max_seconds = %d\n",
		view.Ingest.Workers, view.Ingest.QueueSize, view.Ingest.AutoBundle,
		view.Ingest.AutoDify, view.Ingest.MergeMaxChars, view.Ingest.MergeMaxSeconds)

	return nil
}
