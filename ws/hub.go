package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"war-game-server/config"
	"war-game-server/tree"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains the set of active connections and hands each one its own
// game engine over the shared tree store.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Store      tree.Store
	Config     *config.Config
}

// NewHub creates a new Hub over the given store.
func NewHub(cfg *config.Config, store tree.Store) *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Store:      store,
		Config:     cfg,
	}
}

// Run starts the hub's main loop. Should be run as a goroutine. When ctx is
// cancelled the hub stops accepting registrations.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping", "tag", "ws")
			return
		case client := <-h.Register:
			h.Clients[client] = true
			slog.Info("client connected", "tag", "ws", "conn", client.ID, "total", len(h.Clients))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				slog.Info("client disconnected", "tag", "ws", "conn", client.ID, "total", len(h.Clients))

				// A dropped connection leaves the game like a deliberate
				// exit: mark inactive, transfer host if needed.
				if client.Engine != nil {
					if err := client.Engine.ExitSession(); err != nil {
						slog.Warn("exit on disconnect failed", "tag", "ws", "conn", client.ID, "err", err)
					}
				}
			}
		}
	}
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade", "tag", "ws", "err", err)
		return
	}

	client := newClient(h, conn, r)

	h.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
