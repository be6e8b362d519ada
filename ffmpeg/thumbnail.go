// Package ffmpeg renders single-frame thumbnails with the ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"multicam/internal/timeutil"
	"multicam/library"
)

// DefaultBinary is the ffmpeg executable looked up in PATH.
const DefaultBinary = "ffmpeg"

// HardwareAccel represents a hardware decoding backend
type HardwareAccel string

const (
	HWAccelNone         HardwareAccel = ""
	HWAccelVAAPI        HardwareAccel = "vaapi"        // Intel/AMD on Linux
	HWAccelNVDEC        HardwareAccel = "cuda"         // NVIDIA
	HWAccelVideoToolbox HardwareAccel = "videotoolbox" // macOS
)

// ThumbnailBuilder builds the ffmpeg arguments that extract one frame
type ThumbnailBuilder struct {
	sourcePath string
	at         float64

	hwAccel HardwareAccel
	width   int    // scaled width, height follows the aspect ratio
	codec   string // image encoder, e.g. "mjpeg", "png"
	quality int    // mjpeg qscale, 2 (best) to 31
}

// NewThumbnailBuilder creates a builder for the frame at seconds into sourcePath
func NewThumbnailBuilder(sourcePath string, at float64) *ThumbnailBuilder {
	return &ThumbnailBuilder{
		sourcePath: sourcePath,
		at:         at,
		width:      320,
		codec:      "mjpeg",
		quality:    5,
	}
}

// SetHardwareAccel enables hardware decoding
func (b *ThumbnailBuilder) SetHardwareAccel(accel HardwareAccel) *ThumbnailBuilder {
	b.hwAccel = accel
	return b
}

// SetWidth sets the output width in pixels (0 keeps the source size)
func (b *ThumbnailBuilder) SetWidth(width int) *ThumbnailBuilder {
	b.width = width
	return b
}

// SetCodec sets the image encoder
func (b *ThumbnailBuilder) SetCodec(codec string) *ThumbnailBuilder {
	b.codec = codec
	return b
}

// SetQuality sets the mjpeg quality scale
func (b *ThumbnailBuilder) SetQuality(q int) *ThumbnailBuilder {
	b.quality = q
	return b
}

// BuildArgs constructs the ffmpeg arguments. The image is written to stdout.
func (b *ThumbnailBuilder) BuildArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if b.hwAccel != HWAccelNone {
		args = append(args, "-hwaccel", string(b.hwAccel))
	}

	// Input seeking is fast and frame-accurate enough for previews
	at := b.at
	if at < 0 {
		at = 0
	}
	args = append(args,
		"-ss", timeutil.FormatSeconds(at),
		"-i", b.sourcePath,
		"-frames:v", "1",
		"-an",
	)

	if b.width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", b.width))
	}

	args = append(args, "-c:v", b.codec)
	if b.codec == "mjpeg" && b.quality > 0 {
		args = append(args, "-q:v", fmt.Sprintf("%d", b.quality))
	}

	return append(args, "-f", "image2pipe", "pipe:1")
}

// DryRun returns the command that would be executed without running it
func (b *ThumbnailBuilder) DryRun() string {
	return DefaultBinary + " " + strings.Join(b.BuildArgs(), " ")
}

// Fetcher renders thumbnails by running ffmpeg. It satisfies
// library.ThumbnailFetcher.
type Fetcher struct {
	binary string
	width  int
	accel  HardwareAccel
}

// NewFetcher creates a fetcher for binary, or DefaultBinary when empty
func NewFetcher(binary string) *Fetcher {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Fetcher{binary: binary, width: 320}
}

// SetWidth sets the thumbnail width
func (f *Fetcher) SetWidth(width int) *Fetcher {
	f.width = width
	return f
}

// SetHardwareAccel enables hardware decoding
func (f *Fetcher) SetHardwareAccel(accel HardwareAccel) *Fetcher {
	f.accel = accel
	return f
}

// FetchThumbnail renders the frame described by req. The process is killed
// when ctx is cancelled.
func (f *Fetcher) FetchThumbnail(ctx context.Context, req library.ThumbnailRequest) ([]byte, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("source path cannot be empty")
	}

	args := NewThumbnailBuilder(req.Path, req.At).
		SetWidth(f.width).
		SetHardwareAccel(f.accel).
		BuildArgs()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %w (output: %s)", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no image for %s at %.3f", req.Path, req.At)
	}
	return stdout.Bytes(), nil
}
