package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/config"
	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/note"
	"github.com/pxh52013145/VNote/internal/raghistory"
	"github.com/pxh52013145/VNote/internal/server"
	"github.com/pxh52013145/VNote/internal/task"
)

var flagServeAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP sync service",
		Long: `Run the HTTP service: the /sync endpoints, profile management, the
generate pipeline, and the RAG chat surface.

SIGHUP triggers a full reconcile scan; 'vnote scan --daemon' sends it for you.`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&flagServeAddr, "addr", "", "listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	addr := resolvedCfg.Server.Addr
	if cmd.Flags().Changed("addr") {
		addr = flagServeAddr
	}

	cleanupPID, err := writePIDFile(pidFilePath())
	if err != nil {
		return err
	}
	defer cleanupPID()

	lib := newLibraryStore(logger)

	watcher, err := library.NewWatcher(lib.Root(), logger)
	if err != nil {
		return fmt.Errorf("starting library watcher: %w", err)
	}
	defer watcher.Close()

	snap, err := openSnapshot(logger)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snap.Close()

	engine := newEngine(lib, snap, watcher.ConsumeDirty, logger)
	registry := newProfileRegistry(logger)

	pool, err := task.NewPool(task.Config{
		Library:    lib,
		Generator:  unconfiguredGenerator{},
		Publisher:  engine,
		Logger:     logger,
		Workers:    resolvedCfg.Ingest.Workers,
		QueueSize:  resolvedCfg.Ingest.QueueSize,
		AutoBundle: resolvedCfg.Ingest.AutoBundle,
		AutoDify:   config.BoolOrAuto(resolvedCfg.Ingest.AutoDify),
	})
	if err != nil {
		return fmt.Errorf("building ingest pool: %w", err)
	}

	history := raghistory.NewStore(filepath.Join(resolvedCfg.Library.StateDir, "rag_history.json"), logger)

	srv := server.New(server.Config{
		Engine:   engine,
		Library:  lib,
		Registry: registry,
		Pool:     pool,
		History:  history,
		Dify:     dify.FromAppConfig(resolvedCfg.Dify),
		Logger:   logger,
	})

	ctx := shutdownContext(cmd.Context(), logger)

	pool.Start(ctx)
	defer pool.Stop()

	// SIGHUP asks the running service for a fresh reconcile scan.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		for range hup {
			logger.Info("received SIGHUP, running reconcile scan")

			if _, err := engine.Scan(ctx); err != nil {
				logger.Error("signal-triggered scan failed", "error", err)
			}
		}
	}()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http service listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), resolvedCfg.Server.ShutdownTimeoutDuration())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info("http service stopped")

	return nil
}

// unconfiguredGenerator rejects generate requests with a clear message. The
// download/transcription/summarization tooling ships as a companion service;
// a bare vnote deployment still serves the sync and profile surfaces, and
// /generate fails fast instead of hanging.
type unconfiguredGenerator struct{}

var errNoGenerator = errors.New("no note generator is configured on this deployment")

func (unconfiguredGenerator) Parse(context.Context, note.RequestMeta) error {
	return errNoGenerator
}

func (unconfiguredGenerator) Download(context.Context, note.RequestMeta) (*note.AudioMeta, error) {
	return nil, errNoGenerator
}

func (unconfiguredGenerator) Transcribe(context.Context, *note.AudioMeta) (*note.Transcript, error) {
	return nil, errNoGenerator
}

func (unconfiguredGenerator) Summarize(context.Context, *note.AudioMeta, *note.Transcript, note.RequestMeta) (string, error) {
	return "", errNoGenerator
}

func (unconfiguredGenerator) Format(context.Context, string, note.RequestMeta) (string, error) {
	return "", errNoGenerator
}
