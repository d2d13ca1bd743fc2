package ws

import (
	"encoding/json"

	"war-game-server/game"
)

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw payload alongside the routing type.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- Client-to-Server message payloads ---

// AuthMsg carries the attestation token; required as the first message in
// hardened mode.
type AuthMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// CreateGameMsg asks for a fresh session.
type CreateGameMsg struct {
	Type string `json:"type"`
}

// JoinGameMsg joins an existing session by code (typed or pasted from a
// share URL).
type JoinGameMsg struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// SetNameMsg declares the player's display name.
type SetNameMsg struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// StartGameMsg deals the cards and starts play. Host only.
type StartGameMsg struct {
	Type string `json:"type"`
}

// PlayCardMsg plays the top card into the current round or war stage.
type PlayCardMsg struct {
	Type string `json:"type"`
}

// ExitGameMsg leaves the session.
type ExitGameMsg struct {
	Type string `json:"type"`
}

// --- Server-to-Client messages ---

// ErrorMsg is sent when a client action is invalid or fails.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GameCreatedMsg confirms session creation.
type GameCreatedMsg struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	JoinURL  string `json:"joinUrl"`
}

// GameJoinedMsg confirms joining a session.
type GameJoinedMsg struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

// SessionStateMsg is the full shared-session snapshot pushed on every
// mutation, annotated with this connection's player id.
type SessionStateMsg struct {
	Type    string        `json:"type"`
	You     string        `json:"you"`
	Session *game.Session `json:"session"`
	Message string        `json:"message,omitempty"`
}

// PlayersMsg is the participants subtree stream (lobby list, card counts).
type PlayersMsg struct {
	Type    string                      `json:"type"`
	Players map[string]game.Participant `json:"players"`
}

// GameEndedMsg fires once when the session ends or disappears.
type GameEndedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
