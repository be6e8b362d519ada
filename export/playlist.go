package export

import (
	"fmt"
	"io"

	"github.com/grafov/m3u8"

	"multicam/models"
)

// Playlist builds an HLS VOD media playlist with one entry per cut. A
// discontinuity tag marks every change of source file, since consecutive
// cuts come from different encodes. Titles carry the track and the
// file-relative in/out points because HLS has no trim directive.
func (e *Exporter) Playlist(plan *models.AssemblyPlan) (*m3u8.MediaPlaylist, error) {
	cuts, _, err := e.Cuts(plan)
	if err != nil {
		return nil, err
	}

	p, err := m3u8.NewMediaPlaylist(0, uint(len(cuts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	prevFile := ""
	for i, cut := range cuts {
		title := fmt.Sprintf("%s in=%.3f out=%.3f", cut.SourceTrack, cut.In, cut.Out)
		if err := p.Append(cut.Path, cut.Duration(), title); err != nil {
			return nil, fmt.Errorf("failed to append cut %d: %w", i, err)
		}
		if i > 0 && cut.FileID != prevFile {
			if err := p.SetDiscontinuity(); err != nil {
				return nil, fmt.Errorf("failed to mark discontinuity at cut %d: %w", i, err)
			}
		}
		prevFile = cut.FileID
	}

	p.MediaType = m3u8.VOD
	p.Close()
	return p, nil
}

// WriteM3U8 encodes the plan's playlist to w.
func (e *Exporter) WriteM3U8(w io.Writer, plan *models.AssemblyPlan) error {
	p, err := e.Playlist(plan)
	if err != nil {
		return err
	}
	if _, err := w.Write(p.Encode().Bytes()); err != nil {
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	return nil
}
