package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("production", &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("task", "quiz").Msg("batch started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "batch started" || entry["task"] != "quiz" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestDevelopmentLoggerIncludesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("development", &buf)

	log.Debug().Msg("visible")
	if !bytes.Contains(buf.Bytes(), []byte("visible")) {
		t.Errorf("expected debug output, got %q", buf.String())
	}
}
