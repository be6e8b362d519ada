package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"multicam/config"
	"multicam/ffprobe"
	"multicam/models"
)

// fakeProber serves canned probe results keyed by path.
type fakeProber map[string]ffprobe.ProbeResult

func (f fakeProber) Probe(ctx context.Context, path string) (*ffprobe.ProbeResult, error) {
	r, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("ffprobe failed: %s not found", path)
	}
	return &r, nil
}

func probeResult(camera, created, duration string) ffprobe.ProbeResult {
	return ffprobe.ProbeResult{
		Streams: []ffprobe.Stream{{CodecName: "h264", CodecType: "video", Width: 1920, Height: 1080}},
		Format: ffprobe.Format{
			Duration: duration,
			Tags: map[string]string{
				"creation_time":                         created,
				"com.apple.quicktime.camera.identifier": camera,
			},
		},
	}
}

// run executes the root command with a fake prober and a config file
// holding the defaults.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	orig := newProber
	newProber = func(string) ffprobe.Prober {
		return fakeProber{
			"/media/a.mp4": probeResult("cam-a", "2024-03-01T10:00:00Z", "9"),
			"/media/b.mp4": probeResult("cam-b", "2024-03-01T10:00:00Z", "9"),
		}
	}
	t.Cleanup(func() { newProber = orig })

	cfgPath := filepath.Join(t.TempDir(), "multicam.yaml")
	if err := config.SaveConfigFile(config.DefaultConfig(), cfgPath); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestImportCommand(t *testing.T) {
	out, stderr, err := run(t, "import", "/media/a.mp4", "/media/b.mp4", "/media/gone.mp4")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "cam-a") || !strings.Contains(out, "cam-b") {
		t.Errorf("Expected both cameras in output, got:\n%s", out)
	}
	if !strings.Contains(out, "#0  00:00:09.00  2 track(s)") {
		t.Errorf("Expected one session with two tracks, got:\n%s", out)
	}
	if !strings.Contains(stderr, "/media/gone.mp4") {
		t.Errorf("Expected failed probe on stderr, got:\n%s", stderr)
	}
}

func TestImportCommand_NothingImported(t *testing.T) {
	if _, _, err := run(t, "import", "/media/gone.mp4"); err == nil {
		t.Error("Expected error when no file could be imported")
	}
}

func TestPlanCommand(t *testing.T) {
	out, _, err := run(t, "plan", "--session", "0", "--format", "json", "--output", "", "/media/a.mp4", "/media/b.mp4")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	var plan models.AssemblyPlan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("Failed to decode plan: %v\n%s", err, out)
	}
	if plan.TotalDuration != 9 {
		t.Errorf("Expected total duration 9, got %f", plan.TotalDuration)
	}
	if len(plan.Segments) == 0 {
		t.Error("Expected segments in plan")
	}
}

func TestPlanCommand_Formats(t *testing.T) {
	out, _, err := run(t, "plan", "--session", "0", "--format", "ffconcat", "--output", "", "/media/a.mp4", "/media/b.mp4")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !strings.HasPrefix(out, "ffconcat version 1.0") {
		t.Errorf("Unexpected ffconcat output:\n%s", out)
	}

	outPath := filepath.Join(t.TempDir(), "plan.m3u8")
	if _, _, err := run(t, "plan", "--session", "0", "--format", "m3u8", "--output", outPath, "/media/a.mp4", "/media/b.mp4"); err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Failed to read playlist: %v", err)
	}
	if !strings.Contains(string(data), "#EXTM3U") {
		t.Errorf("Expected an HLS playlist, got:\n%s", data)
	}
}

func TestPlanCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad format", []string{"plan", "--session", "0", "--format", "xml", "--output", "", "/media/a.mp4"}},
		{"unknown session", []string{"plan", "--session", "5", "--format", "json", "--output", "", "/media/a.mp4", "/media/b.mp4"}},
		{"single camera", []string{"plan", "--session", "0", "--format", "json", "--output", "", "/media/a.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := run(t, tt.args...); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestConfigCommand(t *testing.T) {
	savePath := filepath.Join(t.TempDir(), "saved.yaml")
	out, _, err := run(t, "config", "--save", savePath, "--session-gap", "120")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(out, "Effective Configuration") {
		t.Errorf("Expected configuration banner, got:\n%s", out)
	}

	cfg, err := config.LoadConfigFile(savePath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if cfg.Sessions.Gap != 120 {
		t.Errorf("Expected saved session gap 120, got %f", cfg.Sessions.Gap)
	}
}
