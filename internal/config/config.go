// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mafia-game/backend/internal/models"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`
	GinMode       string `env:"GIN_MODE" envDefault:"debug"`

	// DBPath selects the sqlite store; empty keeps games in memory.
	DBPath string `env:"DB_PATH"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	InactivityThreshold time.Duration `env:"INACTIVITY_THRESHOLD" envDefault:"30m"`
	ReaperInterval      time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	ClockReferenceURL string        `env:"CLOCK_REFERENCE_URL"`
	ClockSyncInterval time.Duration `env:"CLOCK_SYNC_INTERVAL" envDefault:"10m"`

	Lobbies string `env:"LOBBIES" envDefault:"lobby-1:Lobby 1,lobby-2:Lobby 2,lobby-3:Lobby 3"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.InactivityThreshold <= 0 {
		return errors.New("INACTIVITY_THRESHOLD must be positive")
	}
	if c.ReaperInterval <= 0 {
		return errors.New("REAPER_INTERVAL must be positive")
	}
	if c.ClockReferenceURL != "" && c.ClockSyncInterval <= 0 {
		return errors.New("CLOCK_SYNC_INTERVAL must be positive")
	}
	if _, err := ParseLobbies(c.Lobbies); err != nil {
		return err
	}
	return nil
}

// LobbyCatalogue returns the configured lobbies.
func (c Config) LobbyCatalogue() []models.LobbyInfo {
	lobbies, _ := ParseLobbies(c.Lobbies)
	return lobbies
}

// ParseLobbies reads a catalogue written as "id:Name,id:Name". A missing
// name defaults to the id. An empty string yields no catalogue.
func ParseLobbies(raw string) ([]models.LobbyInfo, error) {
	var out []models.LobbyInfo
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, _ := strings.Cut(entry, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("LOBBIES entry %q has no id", entry)
		}
		if seen[id] {
			return nil, fmt.Errorf("LOBBIES lists %q twice", id)
		}
		seen[id] = true
		if name == "" {
			name = id
		}
		out = append(out, models.LobbyInfo{ID: id, Name: name})
	}
	return out, nil
}
