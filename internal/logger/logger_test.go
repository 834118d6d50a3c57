package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("batch_id", "b1").Msg("batch finalized")

	output := buf.String()
	if !strings.Contains(output, "batch finalized") || !strings.Contains(output, "b1") {
		t.Errorf("Expected output to contain message and batch_id, got: %s", output)
	}
}

func TestNewWithConfig_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := NewWithConfigWriter(buf, "warn", "json")
	if err != nil {
		t.Fatalf("NewWithConfigWriter() error = %v", err)
	}

	log.Info().Msg("dropped")
	log.Warn().Str("entity", "USA").Msg("chunk failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line at warn level, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["level"] != "warn" || entry["entity"] != "USA" || entry["message"] != "chunk failed" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

func TestNewWithConfig_Console(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := NewWithConfigWriter(buf, "", "")
	if err != nil {
		t.Fatalf("NewWithConfigWriter() error = %v", err)
	}
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected default level info, got %s", log.GetLevel())
	}

	log.Info().Msg("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("Expected console output, got JSON: %s", buf.String())
	}
}

func TestNewWithConfig_Invalid(t *testing.T) {
	if _, err := NewWithConfigWriter(&bytes.Buffer{}, "loud", "json"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := NewWithConfigWriter(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"ERROR", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, %v", tt.in, got, err)
		}
	}
}

func TestWithContext(t *testing.T) {
	ctx := WithContext(context.Background(), New())

	if ctx.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	// Should return a default logger when none is in context
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	logWithFields := WithFields(log, map[string]interface{}{
		"file_name": "q1.xlsx",
		"entity":    "HQ",
	})
	logWithFields.Info().Msg("ingest started")

	output := buf.String()
	if !strings.Contains(output, `"file_name":"q1.xlsx"`) {
		t.Errorf("Expected output to contain file_name field, got: %s", output)
	}
	if !strings.Contains(output, `"entity":"HQ"`) {
		t.Errorf("Expected output to contain entity field, got: %s", output)
	}
}
