package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"war-game-server/auth"
	"war-game-server/client"
	"war-game-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between one websocket connection and that player's
// game engine.
type Client struct {
	ID       string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Engine   *client.Engine
	attestor auth.Attestor
	host     string
}

func newClient(h *Hub, conn *websocket.Conn, r *http.Request) *Client {
	var attestor auth.Attestor
	if h.Config.AuthBaseURL != "" {
		attestor = auth.NewTokenAttestor(h.Config.AuthBaseURL)
	} else {
		attestor = auth.Permissive{}
	}
	return &Client{
		ID:       uuid.NewString(),
		Hub:      h,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		attestor: attestor,
		host:     r.Host,
	}
}

// ReadPump pumps messages from the websocket connection into the engine.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read", "tag", "ws", "conn", c.ID, "err", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket
// connection. It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	switch envelope.Type {
	case "auth":
		c.handleAuth(envelope.Raw)
	case "create_game":
		c.handleCreateGame()
	case "join_game":
		c.handleJoinGame(envelope.Raw)
	case "set_name":
		c.handleSetName(envelope.Raw)
	case "start_game":
		c.handleStartGame()
	case "play_card":
		c.handlePlayCard()
	case "exit_game":
		c.handleExitGame()
	default:
		c.sendError("Unknown message type: " + envelope.Type)
	}
}

func (c *Client) handleAuth(raw json.RawMessage) {
	var msg AuthMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid auth message.")
		return
	}
	ta, ok := c.attestor.(*auth.TokenAttestor)
	if !ok {
		// Permissive mode; nothing to verify.
		return
	}
	if err := ta.Verify(msg.Token); err != nil {
		slog.Warn("attestation failed", "tag", "auth", "conn", c.ID, "err", err)
		c.sendError("Verification failed. Please refresh and try again.")
	}
}

func (c *Client) handleCreateGame() {
	if c.Engine != nil {
		c.sendError("Already in a game.")
		return
	}
	eng := client.NewEngine(c.Hub.Store, c.Hub.Config, c.attestor)
	code, err := eng.CreateSession(context.Background())
	if err != nil {
		c.sendError("Error creating game: " + err.Error())
		return
	}
	c.Engine = eng
	go c.forwardNotifications()

	c.sendJSON(GameCreatedMsg{
		Type:     "game_created",
		Code:     code,
		PlayerID: eng.PlayerID(),
		JoinURL:  "https://" + c.host + "/?code=" + code,
	})
}

func (c *Client) handleJoinGame(raw json.RawMessage) {
	var msg JoinGameMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid join_game message.")
		return
	}
	if msg.Code == "" {
		c.sendError("Please enter a game code.")
		return
	}
	if c.Engine != nil {
		c.sendError("Already in a game.")
		return
	}
	eng := client.NewEngine(c.Hub.Store, c.Hub.Config, c.attestor)
	if err := eng.JoinSession(context.Background(), msg.Code); err != nil {
		c.sendError("Error joining game: " + err.Error())
		return
	}
	c.Engine = eng
	go c.forwardNotifications()

	c.sendJSON(GameJoinedMsg{
		Type:     "game_joined",
		Code:     eng.Code(),
		PlayerID: eng.PlayerID(),
	})
}

func (c *Client) handleSetName(raw json.RawMessage) {
	var msg SetNameMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid set_name message.")
		return
	}
	if c.Engine == nil {
		c.sendError("You are not in a game.")
		return
	}
	if err := c.Engine.SetName(msg.Name); err != nil {
		c.sendError("Error setting name: " + err.Error())
	}
}

func (c *Client) handleStartGame() {
	if c.Engine == nil {
		c.sendError("You are not in a game.")
		return
	}
	if err := c.Engine.StartSession(); err != nil {
		c.sendError("Error starting game: " + err.Error())
	}
}

func (c *Client) handlePlayCard() {
	if c.Engine == nil {
		c.sendError("You are not in a game.")
		return
	}
	if err := c.Engine.SubmitPlay(); err != nil {
		c.sendError(err.Error())
	}
}

func (c *Client) handleExitGame() {
	if c.Engine == nil {
		c.sendError("You are not in a game.")
		return
	}
	if err := c.Engine.ExitSession(); err != nil {
		slog.Warn("exit game", "tag", "ws", "conn", c.ID, "err", err)
	}
	c.Engine = nil
}

// forwardNotifications translates engine notifications into outbound
// websocket messages for this connection.
func (c *Client) forwardNotifications() {
	eng := c.Engine
	if eng == nil {
		return
	}
	for {
		var n client.Notification
		select {
		case n = <-eng.Notifications():
		case <-eng.Done():
			return
		}
		switch n.Kind {
		case client.NotifySession:
			c.sendJSON(SessionStateMsg{
				Type:    "game_state",
				You:     eng.PlayerID(),
				Session: n.Session,
				Message: n.Message,
			})
		case client.NotifyPlayers:
			c.sendJSON(PlayersMsg{Type: "players", Players: n.Players})
		case client.NotifyError:
			c.sendError(n.Message)
		case client.NotifyEnded:
			c.sendJSON(GameEndedMsg{Type: "game_ended", Message: n.Message})
		}
	}
}

func (c *Client) sendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshaling outbound message", "tag", "ws", "conn", c.ID, "err", err)
		return
	}
	wsutil.SafeSend(c.Send, data)
}

func (c *Client) sendError(message string) {
	c.sendJSON(ErrorMsg{Type: "error", Message: message})
}
