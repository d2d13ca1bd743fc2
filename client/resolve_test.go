package client

import (
	"context"
	"strings"
	"testing"

	"war-game-server/game"
	"war-game-server/tree"
)

// seedSession writes the whole session document and returns an engine whose
// snapshot is that session, ready for direct resolution calls.
func seedSession(t *testing.T, store tree.Store, code string, s *game.Session) *Engine {
	t.Helper()
	if err := store.Update(context.Background(), map[string]any{"games/" + code: s}); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	e := newTestEngine(store)
	e.code = code
	e.session = s
	return e
}

func TestResolveRoundSingleWinner(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Name: "Alice", Active: true, Cards: []game.Card{card("2")}},
			"b": {Name: "Bob", Active: true, Cards: []game.Card{card("4")}},
		},
		BattleCards: map[string]game.Card{"a": card("K"), "b": card("3")},
	}
	e := seedSession(t, store, "GAME01", s)
	defer e.Close()

	e.handleResolveRound()

	got := readSession(t, store, "GAME01")
	if got.CurrentRound != 1 {
		t.Errorf("currentRound = %d, want 1", got.CurrentRound)
	}
	if len(got.BattleCards) != 0 {
		t.Errorf("battleCards not cleared: %v", got.BattleCards)
	}
	if len(got.Players["a"].Cards) != 3 {
		t.Errorf("winner hand = %v, want 3 cards", got.Players["a"].Cards)
	}
	if len(got.Players["b"].Cards) != 1 {
		t.Errorf("loser hand = %v, want untouched", got.Players["b"].Cards)
	}
	if !strings.Contains(got.Message, "Alice") {
		t.Errorf("message = %q, want winner named", got.Message)
	}
	if got.Status != game.StatusPlaying {
		t.Errorf("status = %q, want still playing", got.Status)
	}
	if e.resolving {
		t.Error("resolving guard not released")
	}
}

func TestResolveRoundEndsGame(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Name: "Alice", Active: true, Cards: []game.Card{card("2")}},
			"b": {Name: "Bob", Active: true, Cards: []game.Card{}},
		},
		BattleCards: map[string]game.Card{"a": card("K"), "b": card("3")},
	}
	e := seedSession(t, store, "GAME02", s)
	defer e.Close()

	e.handleResolveRound()

	got := readSession(t, store, "GAME02")
	if got.Status != game.StatusEnded {
		t.Fatalf("status = %q, want ended", got.Status)
	}
	if got.Winner != "a" {
		t.Errorf("winner = %q, want a", got.Winner)
	}
	if !strings.Contains(got.Message, "wins the game") {
		t.Errorf("message = %q", got.Message)
	}
}

func TestResolveRoundTieDeclaresWar(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2"), card("3")}},
			"b": {Active: true, Cards: []game.Card{card("4"), card("5")}},
		},
		BattleCards: map[string]game.Card{"a": card("K"), "b": card("K")},
	}
	e := seedSession(t, store, "GAME03", s)
	defer e.Close()

	e.handleResolveRound()

	got := readSession(t, store, "GAME03")
	if !got.WarState {
		t.Fatal("warState not set")
	}
	if got.WarStage != game.WarStageDeclared {
		t.Errorf("warStage = %q, want declared", got.WarStage)
	}
	if len(got.WarPlayers) != 2 {
		t.Errorf("warPlayers = %v", got.WarPlayers)
	}
	if len(got.WarPot) != 0 {
		t.Errorf("warPot should start empty, got %v", got.WarPot)
	}
	// The tied cards stay on the table through the war.
	if len(got.BattleCards) != 2 {
		t.Errorf("battleCards = %v, want retained", got.BattleCards)
	}
	if got.CurrentRound != 0 {
		t.Errorf("currentRound = %d, war must not advance the round", got.CurrentRound)
	}
}

// TestResolveRoundLostRace simulates two clients resolving the same round:
// the second resolver still holds the pre-resolution snapshot and must be
// rejected by the revision guard, leaving the first award intact.
func TestResolveRoundLostRace(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2")}},
			"b": {Active: true, Cards: []game.Card{card("4")}},
		},
		BattleCards: map[string]game.Card{"a": card("K"), "b": card("3")},
	}
	first := seedSession(t, store, "GAME04", s)
	defer first.Close()

	stale := *s
	second := newTestEngine(store)
	defer second.Close()
	second.code = "GAME04"
	second.session = &stale

	first.handleResolveRound()
	second.handleResolveRound()

	got := readSession(t, store, "GAME04")
	if got.CurrentRound != 1 {
		t.Errorf("currentRound = %d, want 1 (no double award)", got.CurrentRound)
	}
	if len(got.Players["a"].Cards) != 3 {
		t.Errorf("winner hand = %v, want exactly one award", got.Players["a"].Cards)
	}
	if got.Rev != 1 {
		t.Errorf("rev = %d, want 1", got.Rev)
	}
}

func TestResolveRoundNoOpWhenIncomplete(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2")}},
			"b": {Active: true, Cards: []game.Card{card("4")}},
		},
		BattleCards: map[string]game.Card{"a": card("K")},
	}
	e := seedSession(t, store, "GAME05", s)
	defer e.Close()

	e.handleResolveRound()

	got := readSession(t, store, "GAME05")
	if got.CurrentRound != 0 || len(got.BattleCards) != 1 {
		t.Errorf("incomplete round was resolved: %+v", got)
	}
}

func TestAdvanceWarStage(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2"), card("3")}},
			"b": {Active: true, Cards: []game.Card{card("4"), card("5")}},
		},
		WarState:    true,
		WarStage:    game.WarStageDeclared,
		WarPlayers:  []string{"a", "b"},
		BattleCards: map[string]game.Card{"a": card("K"), "b": card("K")},
	}
	e := seedSession(t, store, "GAME06", s)
	defer e.Close()

	e.handleAdvanceWarStage()

	got := readSession(t, store, "GAME06")
	if got.WarStage != game.WarStageFaceDown {
		t.Errorf("warStage = %q, want face_down", got.WarStage)
	}

	// Advancing again from the new snapshot is a no-op.
	e.session = got
	e.handleAdvanceWarStage()
	again := readSession(t, store, "GAME06")
	if again.Rev != got.Rev {
		t.Errorf("duplicate advance wrote rev %d", again.Rev)
	}
}

func TestResolveWarHighestFaceUpWins(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Name: "Alice", Active: true, Cards: []game.Card{card("6")}},
			"b": {Name: "Bob", Active: true, Cards: []game.Card{card("7")}},
		},
		BattleCards: map[string]game.Card{"a": card("Q"), "b": card("Q")},
		WarState:    true,
		WarStage:    game.WarStageFaceUp,
		WarPlayers:  []string{"a", "b"},
		WarPot:      []game.Card{card("8"), card("9")},
		WarFaceDown: map[string]game.Card{"a": card("2"), "b": card("3")},
		WarFaceUp:   map[string]game.Card{"a": card("K"), "b": card("4")},
	}
	e := seedSession(t, store, "GAME07", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME07")
	// Winner takes pot (2) + face-down (2) + face-up (2) + tied battle
	// cards (2) on top of their hand (1).
	if len(got.Players["a"].Cards) != 9 {
		t.Errorf("winner hand = %d cards, want 9", len(got.Players["a"].Cards))
	}
	if got.WarState || got.WarStage != "" || len(got.WarPot) != 0 ||
		len(got.WarFaceDown) != 0 || len(got.WarFaceUp) != 0 || len(got.WarPlayers) != 0 {
		t.Errorf("war fields not dissolved: %+v", got)
	}
	if len(got.BattleCards) != 0 {
		t.Errorf("battleCards not cleared: %v", got.BattleCards)
	}
	if got.CurrentRound != 1 {
		t.Errorf("currentRound = %d, want 1", got.CurrentRound)
	}
	if !strings.Contains(got.Message, "wins the war") {
		t.Errorf("message = %q", got.Message)
	}
}

func TestResolveWarForfeitShortCircuits(t *testing.T) {
	store := tree.NewMemoryStore()
	// b cannot put up two cards and forfeits; a wins without comparison,
	// taking only what is on the table.
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2"), card("3")}},
			"b": {Active: true, Cards: []game.Card{card("4")}},
		},
		BattleCards: map[string]game.Card{"a": card("Q"), "b": card("Q")},
		WarState:    true,
		WarStage:    game.WarStageDeclared,
		WarPlayers:  []string{"a", "b"},
	}
	e := seedSession(t, store, "GAME08", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME08")
	if got.WarState {
		t.Fatal("war not dissolved")
	}
	if len(got.Players["a"].Cards) != 4 {
		t.Errorf("winner hand = %v, want own 2 plus the 2 tied cards", got.Players["a"].Cards)
	}
	// The forfeiting player cedes nothing from their hand.
	if len(got.Players["b"].Cards) != 1 {
		t.Errorf("forfeiter hand = %v, want untouched", got.Players["b"].Cards)
	}
}

func TestResolveWarDepartedContender(t *testing.T) {
	store := tree.NewMemoryStore()
	// b left mid-war still holding two cards; the war must resolve for a
	// instead of waiting on b's contribution forever.
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2"), card("3")}},
			"b": {Active: false, Cards: []game.Card{card("4"), card("5")}},
		},
		BattleCards: map[string]game.Card{"a": card("Q"), "b": card("Q")},
		WarState:    true,
		WarStage:    game.WarStageFaceDown,
		WarPlayers:  []string{"a", "b"},
	}
	e := seedSession(t, store, "GAME13", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME13")
	if got.WarState {
		t.Fatal("war with a departed contender did not resolve")
	}
	if len(got.Players["a"].Cards) != 4 {
		t.Errorf("remaining contender hand = %v, want own 2 plus the 2 tied cards", got.Players["a"].Cards)
	}
	// The departed player cedes nothing from their hand.
	if len(got.Players["b"].Cards) != 2 {
		t.Errorf("departed hand = %v, want untouched", got.Players["b"].Cards)
	}
}

func TestResolveWarRandomPickSkipsDeparted(t *testing.T) {
	store := tree.NewMemoryStore()
	// Neither war player can fight on: a is short on cards, b has left.
	// The random award must never land on the departed player.
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2")}},
			"b": {Active: false, Cards: []game.Card{card("4"), card("5"), card("6")}},
		},
		BattleCards: map[string]game.Card{"a": card("Q"), "b": card("Q")},
		WarState:    true,
		WarStage:    game.WarStageDeclared,
		WarPlayers:  []string{"a", "b"},
	}
	e := seedSession(t, store, "GAME14", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME14")
	if got.WarState {
		t.Fatal("war did not resolve")
	}
	if len(got.Players["a"].Cards) != 3 {
		t.Errorf("remaining player hand = %v, want own card plus the 2 tied cards", got.Players["a"].Cards)
	}
	if len(got.Players["b"].Cards) != 3 {
		t.Errorf("departed hand = %v, want untouched", got.Players["b"].Cards)
	}
}

func TestResolveWarAllForfeit(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2")}},
			"b": {Active: true, Cards: []game.Card{card("3")}},
		},
		BattleCards: map[string]game.Card{"a": card("Q"), "b": card("Q")},
		WarState:    true,
		WarStage:    game.WarStageDeclared,
		WarPlayers:  []string{"a", "b"},
	}
	e := seedSession(t, store, "GAME09", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME09")
	if got.WarState {
		t.Fatal("war not dissolved")
	}
	winner := ""
	for _, id := range []string{"a", "b"} {
		if len(got.Players[id].Cards) == 3 {
			winner = id
		}
	}
	if winner == "" {
		t.Errorf("no random winner took the tied cards: %+v", got.Players)
	}
}

func TestResolveWarRecursion(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("6"), card("7")}},
			"b": {Active: true, Cards: []game.Card{card("8"), card("9")}},
		},
		BattleCards: map[string]game.Card{"a": card("Q"), "b": card("Q")},
		WarState:    true,
		WarStage:    game.WarStageFaceUp,
		WarPlayers:  []string{"a", "b"},
		WarPot:      []game.Card{card("2"), card("3")},
		WarFaceDown: map[string]game.Card{"a": card("4"), "b": card("5")},
		WarFaceUp:   map[string]game.Card{"a": card("K"), "b": card("K")},
	}
	e := seedSession(t, store, "GAME10", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME10")
	if !got.WarState {
		t.Fatal("recursive war dissolved the war state")
	}
	if got.WarStage != game.WarStageDeclared {
		t.Errorf("warStage = %q, want declared", got.WarStage)
	}
	// Pot absorbs this round's face-down and face-up cards.
	if len(got.WarPot) != 6 {
		t.Errorf("warPot = %d cards, want 6", len(got.WarPot))
	}
	if len(got.WarFaceDown) != 0 || len(got.WarFaceUp) != 0 {
		t.Errorf("war round maps not cleared: %+v", got)
	}
	// The original tied cards remain until the war finally settles.
	if len(got.BattleCards) != 2 {
		t.Errorf("battleCards = %v, want retained", got.BattleCards)
	}
	if got.CurrentRound != 0 {
		t.Errorf("currentRound = %d, recursion must not advance the round", got.CurrentRound)
	}
}

func TestResolveWarTieWithoutCardsPicksRandom(t *testing.T) {
	store := tree.NewMemoryStore()
	// Fresh face-up tie but b cannot afford another war round.
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("6"), card("7")}},
			"b": {Active: true, Cards: []game.Card{card("8")}},
		},
		BattleCards: map[string]game.Card{"a": card("Q"), "b": card("Q")},
		WarState:    true,
		WarStage:    game.WarStageFaceUp,
		WarPlayers:  []string{"a", "b"},
		WarFaceDown: map[string]game.Card{"a": card("4"), "b": card("5")},
		WarFaceUp:   map[string]game.Card{"a": card("K"), "b": card("K")},
	}
	e := seedSession(t, store, "GAME11", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME11")
	if got.WarState {
		t.Fatal("undecidable tie must dissolve the war, not recurse")
	}
	total := len(got.Players["a"].Cards) + len(got.Players["b"].Cards)
	// 3 hand cards + 2 face-down + 2 face-up + 2 battle cards.
	if total != 9 {
		t.Errorf("total cards = %d, want 9", total)
	}
}

func TestRecoverWarResetsState(t *testing.T) {
	store := tree.NewMemoryStore()
	s := &game.Session{
		Status: game.StatusPlaying,
		Players: map[string]game.Participant{
			"a": {Active: true, Cards: []game.Card{card("2")}},
			"b": {Active: true, Cards: []game.Card{card("3")}},
		},
		WarState: true,
		WarStage: game.WarStageFaceDown,
	}
	e := seedSession(t, store, "GAME12", s)
	defer e.Close()

	e.handleResolveWar()

	got := readSession(t, store, "GAME12")
	if got.WarState || got.WarStage != "" {
		t.Errorf("war fields not reset: %+v", got)
	}
	if got.Message == "" {
		t.Error("recovery should explain itself")
	}
}
