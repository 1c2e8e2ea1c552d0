package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"

	"chanrpc/config"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("chanrpc-test", config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("method", "Arith.Add").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expect 1 line above the level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["app"] != "chanrpc-test" || entry["method"] != "Arith.Add" || entry["message"] != "shown" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("expect timestamp field")
	}
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("chanrpc-test", config.LogConfig{Level: "debug", Format: "console"}, &buf)

	logger.Debug().Msg("hello")
	if out := buf.String(); !strings.Contains(out, "hello") || strings.HasPrefix(out, "{") {
		t.Fatalf("expect console output, got %q", out)
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("x", config.LogConfig{Level: "loud", Format: "json"}, &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expect info level, got %q", buf.String())
	}
}

func TestNewSetsGlobalLogger(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	logger := New("global", config.LogConfig{Level: "error", Format: "json"})
	if log.Logger.GetLevel() != logger.GetLevel() {
		t.Fatalf("expect global logger level %v, got %v", logger.GetLevel(), log.Logger.GetLevel())
	}
}
