package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chrysalis/internal/infra/config"
)

func TestNewHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, config.LoggerConfig{Level: "info", Format: "json"}))

	log.Info("mission created", "mission_id", "m-1")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v, output: %s", err, buf.String())
	}
	if entry["msg"] != "mission created" {
		t.Errorf("msg = %q, want %q", entry["msg"], "mission created")
	}
	if entry["mission_id"] != "m-1" {
		t.Errorf("mission_id = %v", entry["mission_id"])
	}
}

func TestRedactsCiphertext(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, config.LoggerConfig{Level: "debug", Format: "text"}))

	log.Debug("payload", "encryptedData", "c2VjcmV0", "encryptedContent", "Ym9vbQ==", "title", "Op Ghost")

	out := buf.String()
	if strings.Contains(out, "c2VjcmV0") || strings.Contains(out, "Ym9vbQ==") {
		t.Errorf("ciphertext leaked into log output: %s", out)
	}
	if !strings.Contains(out, redacted) {
		t.Errorf("expected %s marker in %s", redacted, out)
	}
	if !strings.Contains(out, "Op Ghost") {
		t.Errorf("non-sensitive attrs should be kept: %s", out)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(slog.New(newHandler(&buf, config.LoggerConfig{Format: "text"})), "gateway")
	log.Info("hello")
	if !strings.Contains(buf.String(), "component=gateway") {
		t.Errorf("missing component attr: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOpenOutputStdStreams(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		w, closer, err := openOutput(output)
		if err != nil {
			t.Fatalf("openOutput(%q): %v", output, err)
		}
		if w == nil {
			t.Errorf("openOutput(%q) returned nil writer", output)
		}
		if err := closer(); err != nil {
			t.Errorf("closer(%q): %v", output, err)
		}
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrysalis.log")
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("to file")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing message: %s", data)
	}
	if !strings.Contains(string(data), `"service":"chrysalis"`) {
		t.Errorf("log file missing service attr: %s", data)
	}
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	cfg := config.LoggerConfig{Output: "/nonexistent/dir/chrysalis.log"}
	_, _, err := New(cfg)
	if err == nil {
		t.Error("expected error for invalid output path")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, config.LoggerConfig{Level: "warn"}))

	log.Info("should be filtered")
	log.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn message should appear at warn level")
	}
}
