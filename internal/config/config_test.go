package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mafia-game/backend/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.AllowedOrigin != "*" {
		t.Fatalf("port=%q origin=%q", cfg.Port, cfg.AllowedOrigin)
	}
	if cfg.InactivityThreshold != 30*time.Minute || cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("threshold=%v ttl=%v", cfg.InactivityThreshold, cfg.SessionTTL)
	}
	if len(cfg.LobbyCatalogue()) != 3 {
		t.Fatalf("default catalogue = %+v", cfg.LobbyCatalogue())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("INACTIVITY_THRESHOLD", "5m")
	t.Setenv("LOBBIES", "den:The Den")
	t.Setenv("OTEL_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" || cfg.InactivityThreshold != 5*time.Minute || cfg.OTelEnabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	want := []models.LobbyInfo{{ID: "den", Name: "The Den"}}
	if got := cfg.LobbyCatalogue(); !reflect.DeepEqual(got, want) {
		t.Fatalf("catalogue = %+v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"bad duration", "SESSION_TTL", "soon", "parse env:"},
		{"negative threshold", "INACTIVITY_THRESHOLD", "-1m", "INACTIVITY_THRESHOLD"},
		{"duplicate lobby", "LOBBIES", "a:A,a:B", "twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestParseLobbies(t *testing.T) {
	got, err := ParseLobbies(" one:The Tavern , two ,, three: ")
	if err != nil {
		t.Fatal(err)
	}
	want := []models.LobbyInfo{
		{ID: "one", Name: "The Tavern"},
		{ID: "two", Name: "two"},
		{ID: "three", Name: "three"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
	if _, err := ParseLobbies(":nameless"); err == nil {
		t.Fatal("expected error for missing id")
	}
	if got, _ := ParseLobbies(""); len(got) != 0 {
		t.Fatalf("empty catalogue = %+v", got)
	}
}
