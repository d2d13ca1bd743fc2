package client

import (
	"log/slog"
	"math/rand"

	"war-game-server/game"
	"war-game-server/gameerrors"
)

// handleAdvanceWarStage moves a declared war into card collection once the
// presentational delay has passed. A no-op if another client got there
// first or the war already dissolved.
func (e *Engine) handleAdvanceWarStage() {
	e.warAdvanceScheduled = false
	s := e.session
	if s == nil || !s.WarState || s.WarStage != game.WarStageDeclared {
		return
	}
	e.commit(map[string]any{
		e.sessionField("warStage"): game.WarStageFaceDown,
		e.sessionField("message"):  "War! Play your next card!",
	})
}

// handleResolveRound decides the regular round: single max rank wins the
// battle cards, a tie declares war. Invoked on a state that is already
// resolved (battle cards cleared by another client), it is a strict no-op.
func (e *Engine) handleResolveRound() {
	defer func() { e.resolving = false }()

	s := e.session
	if s == nil || !game.RoundComplete(s) {
		return
	}

	holders := game.HighestHolders(s.BattleCards)
	if len(holders) == 0 {
		e.recoverWar("round resolution with no battle cards")
		return
	}
	if len(holders) == 1 {
		e.awardBattle(s, holders[0])
		return
	}

	// Tie: declare war. The tied cards stay visible in battleCards and are
	// awarded with the pot once the war settles.
	e.commit(map[string]any{
		e.sessionField("warState"):    true,
		e.sessionField("warPlayers"):  holders,
		e.sessionField("warStage"):    game.WarStageDeclared,
		e.sessionField("warPot"):      nil,
		e.sessionField("warFaceDown"): nil,
		e.sessionField("warFaceUp"):   nil,
		e.sessionField("message"):     "WAR!",
	})
}

// handleResolveWar decides a war round: compares face-up cards among
// contenders, recurses on a fresh tie, and falls back to a random pick when
// contenders cannot fight on.
func (e *Engine) handleResolveWar() {
	defer func() { e.resolving = false }()

	s := e.session
	if s == nil || !s.WarState {
		return
	}
	if len(s.WarPlayers) == 0 {
		e.recoverWar("war state with no war players")
		return
	}

	contenders, _ := game.WarContenders(s)
	switch len(contenders) {
	case 0:
		// Everyone forfeited; the pot goes to a random original contender
		// who is still in the session.
		pool := make([]string, 0, len(s.WarPlayers))
		for _, id := range s.WarPlayers {
			if p, ok := s.Players[id]; ok && p.Active {
				pool = append(pool, id)
			}
		}
		if len(pool) == 0 {
			pool = s.WarPlayers
		}
		e.awardWar(s, pool[rand.Intn(len(pool))])
		return
	case 1:
		e.awardWar(s, contenders[0])
		return
	}

	if s.WarStage != game.WarStageFaceUp || !game.WarStageComplete(s) {
		return
	}

	faceUps := make(map[string]game.Card, len(contenders))
	for _, id := range contenders {
		faceUps[id] = s.WarFaceUp[id]
	}
	holders := game.HighestHolders(faceUps)
	if len(holders) == 1 {
		e.awardWar(s, holders[0])
		return
	}

	if !game.CanRecurse(s, holders) {
		// A fresh tie someone cannot afford to fight: random winner rather
		// than a deadlocked war.
		e.awardWar(s, holders[rand.Intn(len(holders))])
		return
	}

	// War on war: everything on the table rolls into the pot and the tied
	// subset fights again.
	pot := append(append([]game.Card{}, s.WarPot...), game.WarRoundCards(s)...)
	e.commit(map[string]any{
		e.sessionField("warPlayers"):  holders,
		e.sessionField("warStage"):    game.WarStageDeclared,
		e.sessionField("warPot"):      pot,
		e.sessionField("warFaceDown"): nil,
		e.sessionField("warFaceUp"):   nil,
		e.sessionField("message"):     "Another War!",
	})
}

// awardBattle credits the round's cards to the winner, clears the round,
// and runs end-of-game detection in the same atomic write.
func (e *Engine) awardBattle(s *game.Session, winnerID string) {
	winnerCards := append(append([]game.Card{}, s.Players[winnerID].Cards...), game.BattleSpoils(s)...)
	updates := map[string]any{
		e.playerField(winnerID, "cards"): winnerCards,
		e.sessionField("battleCards"):    nil,
		e.sessionField("currentRound"):   s.CurrentRound + 1,
		e.sessionField("message"):        playerName(s, winnerID) + " takes the round",
	}
	e.clearWarFields(updates)
	e.applyEndOfGame(s, winnerID, winnerCards, updates)
	e.commit(updates)
}

// awardWar credits the full spoils (pot, face-down, face-up, original tied
// cards) to the war winner and dissolves the war.
func (e *Engine) awardWar(s *game.Session, winnerID string) {
	winnerCards := append(append([]game.Card{}, s.Players[winnerID].Cards...), game.WarSpoils(s)...)
	updates := map[string]any{
		e.playerField(winnerID, "cards"): winnerCards,
		e.sessionField("battleCards"):    nil,
		e.sessionField("currentRound"):   s.CurrentRound + 1,
		e.sessionField("message"):        playerName(s, winnerID) + " wins the war!",
	}
	e.clearWarFields(updates)
	e.applyEndOfGame(s, winnerID, winnerCards, updates)
	e.commit(updates)
}

func (e *Engine) clearWarFields(updates map[string]any) {
	updates[e.sessionField("warState")] = nil
	updates[e.sessionField("warStage")] = nil
	updates[e.sessionField("warPlayers")] = nil
	updates[e.sessionField("warPot")] = nil
	updates[e.sessionField("warFaceDown")] = nil
	updates[e.sessionField("warFaceUp")] = nil
}

// applyEndOfGame extends an award with the session-ending writes when the
// award leaves at most one active participant holding cards.
func (e *Engine) applyEndOfGame(s *game.Session, winnerID string, winnerCards []game.Card, updates map[string]any) {
	withCards := 0
	last := ""
	for id, p := range s.Players {
		if !p.Active {
			continue
		}
		cards := p.Cards
		if id == winnerID {
			cards = winnerCards
		}
		if len(cards) > 0 {
			withCards++
			last = id
		}
	}
	switch withCards {
	case 1:
		updates[e.sessionField("status")] = game.StatusEnded
		updates[e.sessionField("winner")] = last
		updates[e.sessionField("message")] = playerName(s, last) + " wins the game!"
	case 0:
		// The forfeit edge case can leave the pot undistributed.
		updates[e.sessionField("status")] = game.StatusEnded
		updates[e.sessionField("message")] = "Game over, no winner"
	}
}

// recoverWar force-resets the war fields to a safe non-war state after an
// inconsistency. Best-effort recovery, not a correctness guarantee.
func (e *Engine) recoverWar(detail string) {
	err := &gameerrors.InvariantViolation{Detail: detail}
	slog.Error("resetting war state", "tag", "client", "game", e.code, "err", err)
	updates := map[string]any{
		e.sessionField("message"): "Round reset after an inconsistency",
	}
	e.clearWarFields(updates)
	e.commit(updates)
}

func playerName(s *game.Session, id string) string {
	if p, ok := s.Players[id]; ok && p.Name != "" {
		return p.Name
	}
	return "Player"
}
