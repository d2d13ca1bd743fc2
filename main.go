package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"war-game-server/api"
	"war-game-server/config"
	"war-game-server/loghandler"
	"war-game-server/tree"
	"war-game-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found; using environment variables.")
	}

	cfg := config.Load()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, level)))

	if cfg.AuthBaseURL == "" {
		slog.Info("Auth: AUTH_BASE_URL is not set; connections are accepted without verification.")
	} else {
		slog.Info("Auth: configured", "baseUrl", cfg.AuthBaseURL)
	}

	slog.Info("Configuration",
		"minPlayers", cfg.MinPlayers,
		"maxPlayers", cfg.MaxPlayers,
		"gameCodeLength", cfg.GameCodeLength,
		"warDeclareDelayMs", cfg.WarDeclareDelayMS,
		"resolveDelayMs", cfg.ResolveDelayMS,
		"wsPort", cfg.WSPort)

	ctx := context.Background()

	var store tree.Store
	if cfg.DatabaseURL != "" {
		pg, err := tree.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("connecting to database", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		slog.Info("Storage: postgres")
		store = pg
	} else {
		slog.Info("Storage: in-memory (set DATABASE_URL to share games across instances)")
		store = tree.NewMemoryStore()
	}

	hub := ws.NewHub(cfg, store)
	go hub.Run(ctx)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r)
	})

	apiHandler := api.NewHandler(cfg, store)
	http.HandleFunc("/api/game", apiHandler.GameInfo)
	http.HandleFunc("/healthz", apiHandler.Health)

	addr := fmt.Sprintf(":%d", cfg.WSPort)
	slog.Info("War server listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
