package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"multicam/models"
)

// WriteFFConcat writes the plan as an ffconcat list for ffmpeg's concat
// demuxer. Format:
//
//	ffconcat version 1.0
//	file '/path/to/a.mp4'
//	inpoint 2.750000
//	outpoint 6.000000
func (e *Exporter) WriteFFConcat(w io.Writer, plan *models.AssemblyPlan) error {
	cuts, _, err := e.Cuts(plan)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, "ffconcat version 1.0\n"); err != nil {
		return fmt.Errorf("failed to write concat header: %w", err)
	}

	for _, cut := range cuts {
		// Use absolute path and escape single quotes
		absPath, err := filepath.Abs(cut.Path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", cut.Path, err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")

		entry := fmt.Sprintf("file '%s'\ninpoint %.6f\noutpoint %.6f\n", escapedPath, cut.In, cut.Out)
		if _, err := io.WriteString(w, entry); err != nil {
			return fmt.Errorf("failed to write concat entry: %w", err)
		}
	}
	return nil
}

// WriteFFConcatFile writes the concat list to path.
func (e *Exporter) WriteFFConcatFile(path string, plan *models.AssemblyPlan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer f.Close()

	if err := e.WriteFFConcat(f, plan); err != nil {
		return err
	}
	return f.Close()
}
