package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatdesk/internal/config"
)

func TestNew_WritesJSONToRotatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := New(config.LogConfig{Dir: dir, Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("session saved", "id", "2024-01-01_00-00-00")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if record["msg"] != "session saved" || record["id"] != "2024-01-01_00-00-00" {
		t.Fatalf("record=%v", record)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(config.LogConfig{Dir: dir, Level: "warn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = closer.Close()

	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Fatalf("unexpected log content: %s", data)
	}
}

func TestNew_EmptyDir(t *testing.T) {
	if _, _, err := New(config.LogConfig{}); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", in, got, want)
		}
	}
}
