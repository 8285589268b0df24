package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/objstore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active profile and snapshot summary",
		Long: `Display the active profile, its object-store bucket and RAG datasets,
the per-status item counts from the last scan snapshot, and whether the
service daemon is running. Reads only local state — no remote calls.`,
		RunE: runStatus,
	}
}

// statusInfo is the status command's payload.
type statusInfo struct {
	Profile             string         `json:"profile"`
	BaseURL             string         `json:"dify_base_url"`
	NoteDatasetID       string         `json:"note_dataset_id,omitempty"`
	TranscriptDatasetID string         `json:"transcript_dataset_id,omitempty"`
	Bucket              string         `json:"minio_bucket,omitempty"`
	LastScannedAt       string         `json:"last_scanned_at,omitempty"`
	Counts              map[string]int `json:"counts"`
	DaemonPID           int            `json:"daemon_pid,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	registry := newProfileRegistry(logger)

	name, pcfg, err := registry.Get()
	if err != nil {
		return fmt.Errorf("reading profile registry: %w", err)
	}

	dcfg := pcfg.Overlay(dify.FromAppConfig(resolvedCfg.Dify))

	info := statusInfo{
		Profile:             name,
		BaseURL:             dcfg.BaseURL,
		NoteDatasetID:       dcfg.NoteDataset(),
		TranscriptDatasetID: dcfg.TranscriptDataset(),
		Counts:              map[string]int{},
	}

	if resolvedCfg.Minio.Endpoint != "" {
		info.Bucket = objstore.BucketNameForProfile(name, resolvedCfg.Minio.BucketPrefix)
	}

	snap, err := openSnapshot(logger)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snap.Close()

	counts, err := snap.CountByStatus(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("reading snapshot counts: %w", err)
	}
	for status, n := range counts {
		info.Counts[string(status)] = n
	}

	if last, err := snap.LastScannedAt(cmd.Context(), name); err == nil {
		info.LastScannedAt = last
	}

	// A readable pid file means a daemon wrote it; staleness is the serve
	// command's problem, status just reports what is recorded.
	if pid, err := readPIDFile(pidFilePath()); err == nil {
		info.DaemonPID = pid
	}

	if flagJSON {
		return printJSON(info)
	}

	fmt.Printf("Profile:            %s\n", info.Profile)
	fmt.Printf("RAG base URL:       %s\n", info.BaseURL)
	fmt.Printf("Note dataset:       %s\n", orDash(info.NoteDatasetID))
	fmt.Printf("Transcript dataset: %s\n", orDash(info.TranscriptDatasetID))
	fmt.Printf("Bucket:             %s\n", orDash(info.Bucket))
	fmt.Printf("Last scan:          %s\n", orDash(info.LastScannedAt))

	if info.DaemonPID > 0 {
		fmt.Printf("Daemon:             running (pid %d)\n", info.DaemonPID)
	} else {
		fmt.Printf("Daemon:             not running\n")
	}

	if len(info.Counts) == 0 {
		fmt.Println("Items:              none scanned yet")
		return nil
	}

	statuses := make([]string, 0, len(info.Counts))
	for s := range info.Counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	fmt.Println("Items:")
	for _, s := range statuses {
		fmt.Printf("  %-20s %d\n", s, info.Counts[s])
	}

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
