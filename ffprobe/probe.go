// Package ffprobe provides utilities for extracting metadata from media files
// using the ffprobe command-line tool.
package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"multicam/internal/timeutil"
	"multicam/models"
)

// DefaultBinary is the ffprobe executable looked up in PATH.
const DefaultBinary = "ffprobe"

// Stream represents a media stream (audio, video, subtitle, etc.)
type Stream struct {
	Index              int               `json:"index"`
	CodecName          string            `json:"codec_name"`
	CodecType          string            `json:"codec_type"`
	CodecLongName      string            `json:"codec_long_name"`
	Profile            string            `json:"profile,omitempty"`
	Width              int               `json:"width,omitempty"`
	Height             int               `json:"height,omitempty"`
	RFrameRate         string            `json:"r_frame_rate,omitempty"`
	DisplayAspectRatio string            `json:"display_aspect_ratio,omitempty"`
	SampleRate         string            `json:"sample_rate,omitempty"`
	Channels           int               `json:"channels,omitempty"`
	Duration           string            `json:"duration,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
	SideDataList       []SideData        `json:"side_data_list,omitempty"`
}

// SideData carries per-stream side data such as the display matrix.
type SideData struct {
	SideDataType string `json:"side_data_type"`
	Rotation     int    `json:"rotation,omitempty"`
}

// Format represents the container format information.
type Format struct {
	Filename       string            `json:"filename"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name"`
	Duration       string            `json:"duration"`
	Size           string            `json:"size"`
	BitRate        string            `json:"bit_rate"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// ProbeResult holds the metadata extracted from a media file.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Prober probes media files. The library depends on this interface so
// tests can supply canned results.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// CommandProber runs the ffprobe binary.
type CommandProber struct {
	binary string
}

// NewCommandProber creates a prober for binary, or DefaultBinary when empty.
func NewCommandProber(binary string) *CommandProber {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CommandProber{binary: binary}
}

// GetDuration returns the duration of the media file in seconds.
//
// The container duration is used when present; otherwise the longest
// stream duration. Returns an error if neither can be parsed.
func (pr *ProbeResult) GetDuration() (float64, error) {
	if pr.Format.Duration != "" {
		duration, err := strconv.ParseFloat(pr.Format.Duration, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse duration '%s': %w", pr.Format.Duration, err)
		}
		return duration, nil
	}

	longest := 0.0
	for _, s := range pr.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > longest {
			longest = d
		}
	}
	if longest == 0 {
		return 0, fmt.Errorf("duration not available in format metadata")
	}
	return longest, nil
}

// GetCreationTime returns the creation timestamp in seconds since the Unix
// epoch, read from the container tags and then from the stream tags.
func (pr *ProbeResult) GetCreationTime() (float64, bool) {
	candidates := []map[string]string{pr.Format.Tags}
	for _, s := range pr.Streams {
		candidates = append(candidates, s.Tags)
	}

	for _, tags := range candidates {
		value, ok := tags["creation_time"]
		if !ok {
			continue
		}
		if t, err := timeutil.ParseCreationTime(value); err == nil {
			return t, true
		}
	}
	return 0, false
}

// GetVideoStreams returns all video streams from the media file.
func (pr *ProbeResult) GetVideoStreams() []Stream {
	var videoStreams []Stream
	for _, stream := range pr.Streams {
		if stream.CodecType == "video" {
			videoStreams = append(videoStreams, stream)
		}
	}
	return videoStreams
}

// GetAudioStreams returns all audio streams from the media file.
func (pr *ProbeResult) GetAudioStreams() []Stream {
	var audioStreams []Stream
	for _, stream := range pr.Streams {
		if stream.CodecType == "audio" {
			audioStreams = append(audioStreams, stream)
		}
	}
	return audioStreams
}

// ToMediaFile converts the probe result into a MediaFile descriptor.
//
// Missing creation time or duration is not an error here: the descriptor
// is returned incomplete and the grouper rejects it with a MissingMetadata
// diagnostic. Only video and audio streams are kept.
func (pr *ProbeResult) ToMediaFile(id, path string) models.MediaFile {
	f := models.MediaFile{ID: id, Path: path}
	if start, ok := pr.GetCreationTime(); ok {
		f.StartTime = models.Seconds(start)
	}
	if d, err := pr.GetDuration(); err == nil {
		f.Duration = d
	}
	if src, ok := pr.Format.Tags["com.apple.quicktime.camera.identifier"]; ok {
		f.SourceID = src
	}

	for _, s := range pr.Streams {
		kind := models.StreamKind(s.CodecType)
		if !kind.IsValid() {
			continue
		}
		f.Streams = append(f.Streams, s.toModel(kind))
	}
	return f
}

func (s Stream) toModel(kind models.StreamKind) models.Stream {
	out := models.Stream{
		Kind:               kind,
		Codec:              s.CodecName,
		Profile:            s.Profile,
		Width:              s.Width,
		Height:             s.Height,
		DisplayAspectRatio: s.DisplayAspectRatio,
		Channels:           s.Channels,
		Rotation:           s.rotation(),
	}
	if r, err := models.ParseRational(s.RFrameRate); err == nil {
		out.FrameRate = r
	}
	if rate, err := strconv.Atoi(s.SampleRate); err == nil {
		out.SampleRate = rate
	}
	return out
}

// rotation prefers the legacy rotate tag and falls back to the display
// matrix side data, which ffprobe reports counter-clockwise.
func (s Stream) rotation() int {
	if v, ok := s.Tags["rotate"]; ok {
		if r, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return normalizeRotation(r)
		}
	}
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" && sd.Rotation != 0 {
			return normalizeRotation(-sd.Rotation)
		}
	}
	return 0
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

// Parse decodes ffprobe's JSON output.
func Parse(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe JSON output: %w", err)
	}
	return &result, nil
}

// Probe analyzes a media file and extracts its metadata using ffprobe.
//
// The function executes ffprobe with JSON output format and parses the result
// to extract duration, streams, and format information.
//
// Example:
//
//	result, err := ffprobe.NewCommandProber("").Probe(ctx, "/path/to/video.mp4")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	file := result.ToMediaFile(id, "/path/to/video.mp4")
func (p *CommandProber) Probe(ctx context.Context, sourcePath string) (*ProbeResult, error) {
	if sourcePath == "" {
		return nil, fmt.Errorf("source path cannot be empty")
	}

	// Build ffprobe command
	// -v quiet: suppress verbose output
	// -print_format json: output in JSON format
	// -show_streams: include stream information
	// -show_format: include format information
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		sourcePath,
	}

	cmd := exec.CommandContext(ctx, p.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w (output: %s)", err, string(output))
	}

	return Parse(output)
}
