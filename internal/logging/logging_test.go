package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", "json", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("level finished", zap.Int("concurrency", 4))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "level finished" || entry["level"] != "info" {
		t.Errorf("entry = %v", entry)
	}
	if entry["concurrency"] != float64(4) {
		t.Errorf("concurrency field = %v", entry["concurrency"])
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("worker drained", zap.Int("worker", 3))
	_ = logger.Sync()

	out := buf.String()
	if !strings.Contains(out, "DEBUG") || !strings.Contains(out, "worker drained") {
		t.Errorf("unexpected console output %q", out)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "console", nil); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "logfmt", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}
