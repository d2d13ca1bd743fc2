package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.WSPort != 8080 {
		t.Errorf("WSPort = %d, want 8080", cfg.WSPort)
	}
	if cfg.MinPlayers != 2 {
		t.Errorf("MinPlayers = %d, want 2", cfg.MinPlayers)
	}
	if cfg.MaxPlayers != 10 {
		t.Errorf("MaxPlayers = %d, want 10", cfg.MaxPlayers)
	}
	if cfg.GameCodeLength != 6 {
		t.Errorf("GameCodeLength = %d, want 6", cfg.GameCodeLength)
	}
	if cfg.WarDeclareDelayMS != 3000 {
		t.Errorf("WarDeclareDelayMS = %d, want 3000", cfg.WarDeclareDelayMS)
	}
	if cfg.ResolveDelayMS != 1000 {
		t.Errorf("ResolveDelayMS = %d, want 1000", cfg.ResolveDelayMS)
	}
	if cfg.MaxNameLength != 24 {
		t.Errorf("MaxNameLength = %d, want 24", cfg.MaxNameLength)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WS_PORT", "9000")
	t.Setenv("MIN_PLAYERS", "3")
	t.Setenv("GAME_CODE_LENGTH", "8")
	t.Setenv("AUTH_BASE_URL", "https://auth.example")
	t.Setenv("DATABASE_URL", "postgres://localhost/war")

	cfg := Load()
	if cfg.WSPort != 9000 {
		t.Errorf("WSPort = %d, want 9000", cfg.WSPort)
	}
	if cfg.MinPlayers != 3 {
		t.Errorf("MinPlayers = %d, want 3", cfg.MinPlayers)
	}
	if cfg.GameCodeLength != 8 {
		t.Errorf("GameCodeLength = %d, want 8", cfg.GameCodeLength)
	}
	if cfg.AuthBaseURL != "https://auth.example" {
		t.Errorf("AuthBaseURL = %q", cfg.AuthBaseURL)
	}
	if cfg.DatabaseURL != "postgres://localhost/war" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoadIgnoresInvalidEnv(t *testing.T) {
	t.Setenv("WS_PORT", "not-a-number")
	t.Setenv("MAX_PLAYERS", "")

	cfg := Load()
	if cfg.WSPort != 8080 {
		t.Errorf("WSPort = %d, want default kept", cfg.WSPort)
	}
	if cfg.MaxPlayers != 10 {
		t.Errorf("MaxPlayers = %d, want default kept", cfg.MaxPlayers)
	}
}
