package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	setup(&buf, "warn", "json")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("hidden")
	log.Warn().Str("lobby", "tavern").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["lobby"] != "tavern" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestSetupUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	setup(&buf, "loud", "json")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %v", zerolog.GlobalLevel())
	}
	if !bytes.Contains(buf.Bytes(), []byte("unknown log level")) {
		t.Fatalf("missing warning: %q", buf.String())
	}
}
