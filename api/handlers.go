package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"war-game-server/config"
	"war-game-server/game"
	"war-game-server/tree"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	Config *config.Config
	Store  tree.Store
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, store tree.Store) *Handler {
	return &Handler{
		Config: cfg,
		Store:  store,
	}
}

// CORS sets CORS headers on the response. Call before writing body.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// GameInfoResponse is the JSON structure for /api/game.
type GameInfoResponse struct {
	Code        string `json:"code"`
	Status      string `json:"status"`
	PlayerCount int    `json:"playerCount"`
	Joinable    bool   `json:"joinable"`
}

// GameInfo returns public information about a game code so a client can
// validate it before opening a websocket. 404 when the code is unknown.
func (h *Handler) GameInfo(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	if code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}

	raw, err := h.Store.Read(r.Context(), "games/"+code)
	if err != nil {
		slog.Error("reading game", "tag", "api", "game", code, "err", err)
		http.Error(w, "failed to load game", http.StatusInternalServerError)
		return
	}
	if raw == nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	var s game.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		slog.Error("decoding game", "tag", "api", "game", code, "err", err)
		http.Error(w, "failed to load game", http.StatusInternalServerError)
		return
	}

	resp := GameInfoResponse{
		Code:        code,
		Status:      string(s.Status),
		PlayerCount: len(s.Players),
		Joinable:    s.Status == game.StatusLobby && len(s.Players) < h.Config.MaxPlayers,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encoding game info response", "tag", "api", "err", err)
	}
}

// Health reports liveness for load balancer checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
