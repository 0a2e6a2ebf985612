package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "api-server")

	logger.Error().Err(errors.New("boom")).Msg("config load error")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "api-server" || entry["message"] != "config load error" || entry["error"] != "boom" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLogger_ConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dev", "seed")

	logger.Info().Msg("seed starting")

	out := buf.String()
	if json.Valid(buf.Bytes()) {
		t.Fatalf("expected console output in dev, got JSON %q", out)
	}
	if !strings.Contains(out, "seed starting") || !strings.Contains(out, "service=seed") {
		t.Fatalf("unexpected console output %q", out)
	}
}

func TestBootstrap_EnvFallback(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := bootEnv(); got != "dev" {
		t.Fatalf("expected dev when APP_ENV is unset, got %q", got)
	}

	t.Setenv("APP_ENV", "prod")
	if got := bootEnv(); got != "prod" {
		t.Fatalf("expected prod, got %q", got)
	}
}
