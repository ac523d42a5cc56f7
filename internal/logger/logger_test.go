package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "info", "json")

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("test message", slog.String("key", "value"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "info", "text")

	l.Warn("channel_fetch_failed", slog.Int("status", 500))

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("output = %q, want level=WARN", out)
	}
	if !strings.Contains(out, "msg=channel_fetch_failed") {
		t.Errorf("output = %q, want msg=channel_fetch_failed", out)
	}
	if !strings.Contains(out, "status=500") {
		t.Errorf("output = %q, want status=500", out)
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		debugLogs bool
		infoLogs  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
		{"unknown", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := Setup(&buf, tt.level, "json")

			l.Debug("debug message")
			if got := buf.Len() > 0; got != tt.debugLogs {
				t.Errorf("debug logged = %v, want %v", got, tt.debugLogs)
			}
			buf.Reset()

			l.Info("info message")
			if got := buf.Len() > 0; got != tt.infoLogs {
				t.Errorf("info logged = %v, want %v", got, tt.infoLogs)
			}
		})
	}
}

func TestSetup_MultipleAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "info", "json")

	l.Info("article_published",
		slog.String("article_id", "a-123"),
		slog.Int("channel_id", 3),
		slog.Int("http_status", 200),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["article_id"] != "a-123" {
		t.Errorf("article_id = %q, want %q", entry["article_id"], "a-123")
	}
	if entry["channel_id"] != float64(3) {
		t.Errorf("channel_id = %v, want %v", entry["channel_id"], 3)
	}
	if entry["http_status"] != float64(200) {
		t.Errorf("http_status = %v, want %v", entry["http_status"], 200)
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := SetupDefault(&buf, "info", "json")

	slog.Default().Info("global test", slog.String("test_key", "test_val"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}

	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
	if l != slog.Default() {
		t.Error("SetupDefault should return the global logger")
	}
}
