package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(Options{Env: "production"}, &buf)).Info("hello", "k", "v")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("production output is not JSON: %q", buf.String())
	}
	if line["msg"] != "hello" || line["k"] != "v" {
		t.Errorf("line = %v", line)
	}

	buf.Reset()
	slog.New(newHandler(Options{Env: "development", Level: "debug"}, &buf)).Debug("dbg")
	if !strings.Contains(buf.String(), "msg=dbg") {
		t.Errorf("development output = %q", buf.String())
	}

	buf.Reset()
	slog.New(newHandler(Options{Env: "production", Level: "warn"}, &buf)).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestHandlerWritesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "assist.log")
	slog.New(newHandler(Options{Format: "json", File: path}, &buf)).Info("to both")
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stdout missing line: %q", buf.String())
	}
}
