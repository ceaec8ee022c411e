package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithOptions_JSONAndLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "warn", Output: &buf})
	log.Info("dropped")
	log.Warn("kept", slog.String("language", "Hindi"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["language"] != "Hindi" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWithOptions_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWithOptions(Options{Format: "TEXT", Output: &buf}).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext without logger should return slog.Default")
	}

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWithOptions(Options{Output: &buf}))
	ctx = With(ctx, slog.String("request_id", "req-1"))
	FromContext(ctx).Info("handled")
	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Errorf("expected request_id attribute, got %q", buf.String())
	}
}
