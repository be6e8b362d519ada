// Package cmd implements the multicam command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"multicam/config"
	"multicam/ffprobe"
	"multicam/internal/logging"
	"multicam/library"
)

var rootCmd = &cobra.Command{
	Use:   "multicam",
	Short: "Multicam timeline engine",
	Long: `multicam groups recordings from several cameras into continuous tracks,
finds the sessions where they overlap and schedules a composite that cycles
between cameras. Plans can be exported as ffconcat lists or HLS playlists,
or served to an editor over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// newProber is replaced in tests.
var newProber = func(binary string) ffprobe.Prober {
	return ffprobe.NewCommandProber(binary)
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads the effective configuration and the logger for cmd.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

// newLibrary builds a library configured from cfg.
func newLibrary(cfg *config.Config, log zerolog.Logger) *library.Library {
	return library.New(newProber(cfg.Import.FFprobe)).
		SetGapEpsilon(cfg.Grouping.GapEpsilon).
		SetSessionGap(cfg.Sessions.Gap).
		SetProbeSlots(cfg.Import.ProbeSlots).
		SetLogger(logging.Component(log, "library"))
}

// importPaths probes paths into lib and reports the files that failed.
func importPaths(cmd *cobra.Command, lib *library.Library, paths []string) error {
	res, err := lib.Import(cmd.Context(), paths)
	if err != nil {
		return err
	}
	for _, d := range res.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %s: %s\n", d.Subject, d.Message)
	}
	if len(res.Added) == 0 && len(lib.Files()) == 0 {
		return fmt.Errorf("no media could be imported")
	}
	return nil
}
