package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"multicam/internal/timeutil"
	"multicam/library"
)

var importCmd = &cobra.Command{
	Use:   "import <media>...",
	Short: "Probe recordings and print their tracks and sessions",
	Long: `Probe every file with ffprobe, group the files into camera tracks and
list the sessions in which two or more cameras recorded together.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	lib := newLibrary(cfg, log)
	if err := importPaths(cmd, lib, args); err != nil {
		return err
	}

	printLibrary(cmd.OutOrStdout(), lib)
	return nil
}

func printLibrary(w io.Writer, lib *library.Library) {
	fmt.Fprintln(w, "📊 Tracks")
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for _, t := range lib.Tracks() {
		fmt.Fprintf(w, "  %-24s %-6s %d segment(s), %s\n",
			t.CameraKey, t.Kind, len(t.Segments), timeutil.FormatSeconds(t.CombinedDuration))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🎬 Sessions")
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	sessions := lib.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "  #%d  %s  %d track(s)\n",
			s.Index, timeutil.FormatSeconds(s.Range.Duration()), len(s.Tracks))
	}

	if diags := lib.Diagnostics(); len(diags) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "⚠️  Diagnostics")
		fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		for _, d := range diags {
			fmt.Fprintf(w, "  [%s] %s: %s\n", d.Kind, d.Subject, d.Message)
		}
	}
}
