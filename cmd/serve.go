package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"multicam/api"
	"multicam/ffmpeg"
	"multicam/internal/logging"
	"multicam/prefs"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [media]...",
	Short: "Serve the library over HTTP",
	Long: `Start the HTTP API. Recordings given as arguments are imported before
the server starts listening; more can be added with POST /v1/files.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	lib := newLibrary(cfg, log)
	if len(args) > 0 {
		if err := importPaths(cmd, lib, args); err != nil {
			return err
		}
	}

	var store prefs.Store = prefs.NewMemoryStore()
	if cfg.Prefs.Path != "" {
		fs, err := prefs.OpenFileStore(cfg.Prefs.Path, logging.Component(log, "prefs"))
		if err != nil {
			return err
		}
		defer fs.Close()
		store = fs
	}

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(lib, store, cfg.CompositeOptions()).
		SetLogger(logging.Component(log, "api")).
		SetStrictMode(cfg.StrictMode).
		SetThumbnailFetcher(ffmpeg.NewFetcher(""), cfg.Thumbnails.Debounce)
	defer server.Close()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Int("files", len(lib.Files())).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
	}

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
