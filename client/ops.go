package client

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"

	"war-game-server/game"
	"war-game-server/gameerrors"
	"war-game-server/tree"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateCode returns a random session code of the configured length.
func generateCode(length int) string {
	code := make([]byte, length)
	for i := range code {
		code[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(code)
}

// CreateSession generates a fresh unused code, initializes the session in
// lobby status, and joins it as host. Returns the code.
func (e *Engine) CreateSession(ctx context.Context) (string, error) {
	if !e.attestor.Verified() {
		return "", gameerrors.ErrNotVerified
	}

	var code string
	for {
		code = generateCode(e.cfg.GameCodeLength)
		raw, err := e.store.Read(ctx, "games/"+code)
		if err != nil {
			return "", gameerrors.Transport("create session", err)
		}
		if raw == nil {
			break
		}
	}

	e.code = code
	e.isHost = true
	err := e.store.Update(ctx, map[string]any{
		e.sessionField("status"):       game.StatusLobby,
		e.sessionField("host"):         e.playerID,
		e.sessionField("currentRound"): 0,
		e.sessionField("createdAt"):    tree.ServerTimestamp,
	})
	if err != nil {
		return "", gameerrors.Transport("create session", err)
	}
	if err := e.enter(ctx); err != nil {
		return "", err
	}
	return code, nil
}

// JoinSession validates that the session exists and is still in the lobby,
// then registers this player and starts the event loop.
func (e *Engine) JoinSession(ctx context.Context, code string) error {
	if !e.attestor.Verified() {
		return gameerrors.ErrNotVerified
	}

	raw, err := e.store.Read(ctx, "games/"+code)
	if err != nil {
		return gameerrors.Transport("join session", err)
	}
	if raw == nil {
		return gameerrors.ErrGameNotFound
	}
	var s game.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return gameerrors.Transport("join session", err)
	}
	switch s.Status {
	case game.StatusLobby:
	case game.StatusEnded:
		return gameerrors.ErrGameEnded
	default:
		return gameerrors.ErrGameInProgress
	}

	e.code = code
	return e.enter(ctx)
}

// enter writes this player's participant entry, subscribes to the session
// and participants streams, and starts the loop.
func (e *Engine) enter(ctx context.Context) error {
	err := e.store.Update(ctx, map[string]any{
		e.playerField(e.playerID, "active"): true,
	})
	if err != nil {
		return gameerrors.Transport("enter session", err)
	}

	go e.run()

	e.sessionSub, err = e.store.Subscribe(e.sessionPath(), func(raw json.RawMessage) {
		e.post(action{typ: actionSessionSnapshot, raw: raw})
	})
	if err != nil {
		return gameerrors.Transport("subscribe session", err)
	}
	e.playersSub, err = e.store.Subscribe(e.sessionPath()+"/players", func(raw json.RawMessage) {
		e.post(action{typ: actionPlayersSnapshot, raw: raw})
	})
	if err != nil {
		return gameerrors.Transport("subscribe players", err)
	}
	return nil
}

// SetName declares the player's display name. Validated before any write.
func (e *Engine) SetName(name string) error {
	if !e.attestor.Verified() {
		return gameerrors.ErrNotVerified
	}
	if e.code == "" {
		return gameerrors.ErrNotInSession
	}
	return e.command(action{typ: actionSetName, name: name})
}

// StartSession deals the deck and flips the session to playing. Host only.
func (e *Engine) StartSession() error {
	if !e.attestor.Verified() {
		return gameerrors.ErrNotVerified
	}
	if e.code == "" {
		return gameerrors.ErrNotInSession
	}
	return e.command(action{typ: actionStartGame})
}

// SubmitPlay plays this player's top card into the current round or war
// stage. The submission guard rejects overlapping attempts until the
// remote write settles.
func (e *Engine) SubmitPlay() error {
	if !e.attestor.Verified() {
		return gameerrors.ErrNotVerified
	}
	if e.code == "" {
		return gameerrors.ErrNotInSession
	}
	return e.command(action{typ: actionPlayCard})
}

// ExitSession marks this player inactive, transfers the host seat if
// needed, ends the session when nobody active remains, and stops the engine.
func (e *Engine) ExitSession() error {
	if e.code == "" {
		return gameerrors.ErrNotInSession
	}
	return e.command(action{typ: actionExitGame})
}

func (e *Engine) handleSetName(name string) error {
	if name == "" {
		return gameerrors.ErrEmptyName
	}
	if len(name) > e.cfg.MaxNameLength {
		return gameerrors.ErrNameTooLong
	}
	err := e.store.Update(context.Background(), map[string]any{
		e.playerField(e.playerID, "name"): name,
	})
	if err != nil {
		return gameerrors.Transport("set name", err)
	}
	return nil
}

func (e *Engine) handleStartGame() error {
	if !e.isHost {
		return gameerrors.ErrNotHost
	}
	s := e.session
	if s == nil || s.Status != game.StatusLobby {
		return gameerrors.ErrGameInProgress
	}

	ids := s.ActivePlayers()
	sort.Strings(ids)
	if len(ids) < e.cfg.MinPlayers {
		return gameerrors.ErrTooFewPlayers
	}
	if len(ids) > e.cfg.MaxPlayers {
		return gameerrors.ErrTooManyPlayers
	}

	hands := game.Deal(game.Shuffle(game.NewDeck()), ids)
	updates := map[string]any{
		e.sessionField("status"):       game.StatusPlaying,
		e.sessionField("currentRound"): 0,
		e.sessionField("battleCards"):  nil,
		e.sessionField("warState"):     nil,
		e.sessionField("warStage"):     nil,
		e.sessionField("warPlayers"):   nil,
		e.sessionField("warPot"):       nil,
		e.sessionField("warFaceDown"):  nil,
		e.sessionField("warFaceUp"):    nil,
		e.sessionField("message"):      "Game on! Play your first card.",
	}
	for id, hand := range hands {
		updates[e.playerField(id, "cards")] = hand
	}
	if err := e.store.Update(context.Background(), updates); err != nil {
		return gameerrors.Transport("start session", err)
	}
	return nil
}

// handlePlayCard validates the play against the current snapshot, applies
// the optimistic local pop, and issues the remote write asynchronously so
// the loop keeps consuming snapshots while the write is in flight.
func (e *Engine) handlePlayCard() error {
	if e.playing {
		return gameerrors.ErrPlayInFlight
	}
	s := e.session
	if s == nil || s.Status != game.StatusPlaying {
		return gameerrors.ErrGameNotFound
	}
	if len(e.myCards) == 0 {
		return gameerrors.ErrNoCards
	}

	var target string
	if s.WarState {
		if !s.IsWarPlayer(e.playerID) {
			return gameerrors.ErrNotInWar
		}
		if s.WarForfeited(e.playerID) {
			return gameerrors.ErrNoCards
		}
		switch s.WarStage {
		case game.WarStageFaceDown:
			if _, ok := s.WarFaceDown[e.playerID]; ok {
				return gameerrors.ErrAlreadyPlayed
			}
			target = e.sessionField("warFaceDown") + "/" + e.playerID
		case game.WarStageFaceUp:
			if _, ok := s.WarFaceUp[e.playerID]; ok {
				return gameerrors.ErrAlreadyPlayed
			}
			target = e.sessionField("warFaceUp") + "/" + e.playerID
		default:
			return gameerrors.ErrAlreadyPlayed
		}
	} else {
		if _, ok := s.BattleCards[e.playerID]; ok {
			return gameerrors.ErrAlreadyPlayed
		}
		target = e.sessionField("battleCards") + "/" + e.playerID
	}

	// Optimistic update: pop the top card locally, revert on failure.
	card := e.myCards[0]
	rest := append([]game.Card{}, e.myCards[1:]...)
	e.myCards = rest
	e.playing = true

	updates := map[string]any{
		target:                             card,
		e.playerField(e.playerID, "cards"): rest,
	}
	go func() {
		err := e.store.Update(context.Background(), updates)
		e.post(action{typ: actionPlaySettled, card: card, err: err})
	}()
	return nil
}

// handlePlaySettled releases the submission guard and rolls the optimistic
// pop back when the write failed.
func (e *Engine) handlePlaySettled(card game.Card, err error) {
	e.playing = false
	if err == nil {
		return
	}
	e.myCards = append([]game.Card{card}, e.myCards...)
	e.notify(Notification{Kind: NotifyError, Message: "Could not play " + card.String() + ", try again"})
}

func (e *Engine) handleExitGame() error {
	updates := map[string]any{
		e.playerField(e.playerID, "active"): false,
	}
	if s := e.session; s != nil && s.Status != game.StatusEnded {
		var remaining []string
		for _, id := range s.ActivePlayers() {
			if id != e.playerID {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		switch {
		case len(remaining) == 0:
			updates[e.sessionField("status")] = game.StatusEnded
		case s.Host == e.playerID:
			updates[e.sessionField("host")] = remaining[0]
		}
	}
	err := e.store.Update(context.Background(), updates)
	e.Close()
	if err != nil {
		return gameerrors.Transport("exit session", err)
	}
	return nil
}
