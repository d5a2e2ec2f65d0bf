package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug", "json")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid", "json")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "console")
	logger.Info().Msg("Transaction completed.")
	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got json: %s", out)
	}
	if !strings.Contains(out, "Transaction completed.") {
		t.Fatalf("message missing from output: %s", out)
	}
}
