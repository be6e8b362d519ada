package ffmpeg

import (
	"context"
	"os"
	"reflect"
	"strings"
	"testing"

	"multicam/library"
)

func TestThumbnailBuilder_BuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ThumbnailBuilder
		expected []string
	}{
		{
			name:    "defaults",
			builder: NewThumbnailBuilder("/media/a.mp4", 90.5),
			expected: []string{
				"-hide_banner", "-loglevel", "error",
				"-ss", "00:01:30.50",
				"-i", "/media/a.mp4",
				"-frames:v", "1", "-an",
				"-vf", "scale=320:-2",
				"-c:v", "mjpeg", "-q:v", "5",
				"-f", "image2pipe", "pipe:1",
			},
		},
		{
			name: "png at source size with hwaccel",
			builder: NewThumbnailBuilder("/media/a.mp4", 0).
				SetWidth(0).
				SetCodec("png").
				SetHardwareAccel(HWAccelVAAPI),
			expected: []string{
				"-hide_banner", "-loglevel", "error",
				"-hwaccel", "vaapi",
				"-ss", "00:00:00.00",
				"-i", "/media/a.mp4",
				"-frames:v", "1", "-an",
				"-c:v", "png",
				"-f", "image2pipe", "pipe:1",
			},
		},
		{
			name:    "negative offset clamps to start",
			builder: NewThumbnailBuilder("/media/a.mp4", -3).SetQuality(0),
			expected: []string{
				"-hide_banner", "-loglevel", "error",
				"-ss", "00:00:00.00",
				"-i", "/media/a.mp4",
				"-frames:v", "1", "-an",
				"-vf", "scale=320:-2",
				"-c:v", "mjpeg",
				"-f", "image2pipe", "pipe:1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder.BuildArgs(); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected args\n%v\ngot\n%v", tt.expected, got)
			}
		})
	}
}

func TestThumbnailBuilder_DryRun(t *testing.T) {
	cmd := NewThumbnailBuilder("/media/a.mp4", 1).DryRun()
	if !strings.HasPrefix(cmd, "ffmpeg -hide_banner") || !strings.HasSuffix(cmd, "pipe:1") {
		t.Errorf("Unexpected command: %s", cmd)
	}
}

func TestFetcher_Errors(t *testing.T) {
	f := NewFetcher("")

	if _, err := f.FetchThumbnail(context.Background(), library.ThumbnailRequest{}); err == nil {
		t.Error("Expected error for empty path")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.FetchThumbnail(ctx, library.ThumbnailRequest{Path: "/media/a.mp4"}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestFetcher_WithRealFile(t *testing.T) {
	testFile := os.Getenv("MULTICAM_TEST_MEDIA")
	if testFile == "" {
		t.Skip("MULTICAM_TEST_MEDIA not set, skipping real file test")
	}

	data, err := NewFetcher("").FetchThumbnail(context.Background(), library.ThumbnailRequest{Path: testFile, At: 0.5})
	if err != nil {
		t.Fatalf("FetchThumbnail failed: %v", err)
	}
	// JPEG SOI marker
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("Expected a JPEG image, got %d bytes", len(data))
	}
}
