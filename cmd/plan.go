package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"multicam/composite"
	"multicam/export"
	"multicam/internal/logging"
	"multicam/models"
)

// Plan output formats.
const (
	FormatJSON     = "json"
	FormatM3U8     = "m3u8"
	FormatFFConcat = "ffconcat"
)

var planCmd = &cobra.Command{
	Use:   "plan <media>...",
	Short: "Schedule a composite for one session",
	Long: `Import the given recordings and schedule a composite over one of the
resulting sessions. The plan is written as JSON, an HLS playlist or an
ffconcat list that ffmpeg can render directly.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

var (
	planSession int
	planFormat  string
	planOutput  string
)

func init() {
	planCmd.Flags().IntVarP(&planSession, "session", "s", 0, "Session index")
	planCmd.Flags().StringVarP(&planFormat, "format", "f", FormatJSON, "Output format: json, m3u8, ffconcat")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Output file (default: stdout)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	switch planFormat {
	case FormatJSON, FormatM3U8, FormatFFConcat:
	default:
		return fmt.Errorf("invalid format %q, must be one of: %s, %s, %s", planFormat, FormatJSON, FormatM3U8, FormatFFConcat)
	}

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	lib := newLibrary(cfg, log)
	if err := importPaths(cmd, lib, args); err != nil {
		return err
	}

	session, ok := lib.Session(planSession)
	if !ok {
		return fmt.Errorf("session %d not found (%d available)", planSession, len(lib.Sessions()))
	}

	plan, err := composite.NewScheduler().
		SetOptions(cfg.CompositeOptions()).
		SetLogger(logging.Component(log, "composite")).
		Plan(session)
	if err != nil {
		return fmt.Errorf("failed to schedule session %d: %w", planSession, err)
	}

	exporter := export.NewExporter(cfg.StrictMode).SetLogger(logging.Component(log, "export"))

	if planOutput == "" {
		return writePlan(cmd.OutOrStdout(), exporter, plan)
	}

	f, err := os.Create(planOutput)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writePlan(f, exporter, plan); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %d segment(s) to %s\n", len(plan.Segments), planOutput)
	return nil
}

func writePlan(w io.Writer, exporter *export.Exporter, plan *models.AssemblyPlan) error {
	switch planFormat {
	case FormatM3U8:
		return exporter.WriteM3U8(w, plan)
	case FormatFFConcat:
		return exporter.WriteFFConcat(w, plan)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
}
