package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds all configurable parameters.
type Config struct {
	WSPort         int `json:"ws_port"`
	MaxNameLength  int `json:"max_name_length"`
	MinPlayers     int `json:"min_players"`
	MaxPlayers     int `json:"max_players"`
	GameCodeLength int `json:"game_code_length"`

	// WarDeclareDelayMS is the presentational pause between declaring a war
	// and collecting war cards. Pacing only; never relied on for correctness.
	WarDeclareDelayMS int `json:"war_declare_delay_ms"`
	// ResolveDelayMS is the pause before a client attempts round or war
	// resolution, leaving time for card animations.
	ResolveDelayMS int `json:"resolve_delay_ms"`

	// AuthBaseURL enables the attestation gate when set; empty means
	// permissive mode (local development).
	AuthBaseURL string `json:"auth_base_url"`
	// DatabaseURL selects the Postgres-backed tree store when set; empty
	// means the in-process store.
	DatabaseURL string `json:"database_url"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		WSPort:            8080,
		MaxNameLength:     24,
		MinPlayers:        2,
		MaxPlayers:        10,
		GameCodeLength:    6,
		WarDeclareDelayMS: 3000,
		ResolveDelayMS:    1000,
	}
}

// Load reads configuration from an optional config.json file, then applies
// environment variable overrides. Fields not set in either source retain
// their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			log.Printf("Warning: failed to parse config.json: %v", err)
		}
	}

	overrideInt(&cfg.WSPort, "WS_PORT")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideInt(&cfg.MinPlayers, "MIN_PLAYERS")
	overrideInt(&cfg.MaxPlayers, "MAX_PLAYERS")
	overrideInt(&cfg.GameCodeLength, "GAME_CODE_LENGTH")
	overrideInt(&cfg.WarDeclareDelayMS, "WAR_DECLARE_DELAY_MS")
	overrideInt(&cfg.ResolveDelayMS, "RESOLVE_DELAY_MS")
	overrideString(&cfg.AuthBaseURL, "AUTH_BASE_URL")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
