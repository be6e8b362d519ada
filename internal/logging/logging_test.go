package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "debug", FormatJSON)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	clockLog := Component(log, "clock")
	clockLog.Debug().Float64("value", 1.5).Msg("set")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "clock" {
		t.Errorf("Expected component 'clock', got %v", entry["component"])
	}
	if entry["message"] != "set" {
		t.Errorf("Expected message 'set', got %v", entry["message"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", FormatJSON)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}
}

func TestNew_InvalidInput(t *testing.T) {
	if _, err := New(nil, "loud", FormatJSON); err == nil {
		t.Error("Expected error for invalid level")
	}
	if _, err := New(nil, "info", "xml"); err == nil {
		t.Error("Expected error for invalid format")
	}
}
