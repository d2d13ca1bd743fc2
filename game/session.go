package game

// Status represents the lifecycle stage of a session.
// Transitions are lobby -> playing -> ended, never backwards.
type Status string

const (
	// StatusLobby is the pre-game state where players can join.
	StatusLobby Status = "lobby"
	// StatusPlaying is the active game state.
	StatusPlaying Status = "playing"
	// StatusEnded is the state after a game concludes.
	StatusEnded Status = "ended"
)

// WarStage is the current stage of an in-flight war sub-round.
type WarStage string

const (
	// WarStageDeclared means a tie was just detected; contenders are being
	// prompted (presentational delay) before cards are collected.
	WarStageDeclared WarStage = "declared"
	// WarStageFaceDown means contenders are contributing their face-down card.
	WarStageFaceDown WarStage = "face_down"
	// WarStageFaceUp means contenders are contributing their face-up card.
	WarStageFaceUp WarStage = "face_up"
	// WarStageResolving means all war cards are in and the winner is being decided.
	WarStageResolving WarStage = "resolving"
)

// Participant is one connected player within a session. A participant's
// name and cards are written only by that participant's own client, except
// when a resolving client awards won cards to the winner.
type Participant struct {
	Name   string `json:"name"`
	Cards  []Card `json:"cards"`
	Active bool   `json:"active"`
}

// Session is the shared document for one game, keyed by a short code.
// Every connected client holds a decoded snapshot of it and reacts to
// changes; no single client owns it.
type Session struct {
	Status       Status                 `json:"status"`
	Host         string                 `json:"host,omitempty"`
	CurrentRound int                    `json:"currentRound"`
	CreatedAt    int64                  `json:"createdAt,omitempty"`
	Players      map[string]Participant `json:"players,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Winner       string                 `json:"winner,omitempty"`

	// Battle sub-state: at most one in-flight round at a time.
	BattleCards map[string]Card `json:"battleCards,omitempty"`

	// War sub-state, present only while a tie is being broken.
	WarState    bool            `json:"warState,omitempty"`
	WarStage    WarStage        `json:"warStage,omitempty"`
	WarPlayers  []string        `json:"warPlayers,omitempty"`
	WarPot      []Card          `json:"warPot,omitempty"`
	WarFaceDown map[string]Card `json:"warFaceDown,omitempty"`
	WarFaceUp   map[string]Card `json:"warFaceUp,omitempty"`

	// Rev is a monotonic revision counter used for conditional updates.
	Rev int64 `json:"rev,omitempty"`
}

// ActivePlayers returns the ids of active participants in no particular order.
func (s *Session) ActivePlayers() []string {
	ids := make([]string, 0, len(s.Players))
	for id, p := range s.Players {
		if p.Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsWarPlayer reports whether the given id is contesting the current war.
func (s *Session) IsWarPlayer(id string) bool {
	for _, wp := range s.WarPlayers {
		if wp == id {
			return true
		}
	}
	return false
}

// CountPlayersWithCards returns how many active participants still hold cards.
func (s *Session) CountPlayersWithCards() int {
	count := 0
	for _, p := range s.Players {
		if p.Active && len(p.Cards) > 0 {
			count++
		}
	}
	return count
}
