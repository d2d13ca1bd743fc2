// Package client implements the distributed game-state machine. One Engine
// runs per connected player; every engine independently observes the shared
// session document and racily attempts the same state transitions, which are
// written so that redundant attempts are no-ops.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"war-game-server/auth"
	"war-game-server/config"
	"war-game-server/game"
	"war-game-server/tree"
)

type actionType int

const (
	actionSessionSnapshot actionType = iota
	actionPlayersSnapshot
	actionSetName
	actionStartGame
	actionPlayCard
	actionExitGame
	actionAdvanceWarStage // presentational delay expired; move declared -> face_down
	actionResolveRound
	actionResolveWar
	actionPlaySettled // remote write for a play settled (success or failure)
)

// action is one unit of work for the engine loop. All game logic runs on
// these, never in parallel within one engine.
type action struct {
	typ   actionType
	raw   json.RawMessage
	name  string
	card  game.Card
	err   error
	reply chan error
}

// NotificationKind tags notifications surfaced to the UI layer.
type NotificationKind string

const (
	// NotifySession carries a full session snapshot after any mutation.
	NotifySession NotificationKind = "session"
	// NotifyPlayers carries the participants subtree.
	NotifyPlayers NotificationKind = "players"
	// NotifyError carries a user-facing failure of an earlier play.
	NotifyError NotificationKind = "error"
	// NotifyEnded fires once when the session reaches the ended status
	// or disappears from the store.
	NotifyEnded NotificationKind = "ended"
)

// Notification is what the engine surfaces to the rendering/input layer.
type Notification struct {
	Kind    NotificationKind
	Session *game.Session
	Players map[string]game.Participant
	Message string
}

// Engine is the per-player game core: a single-goroutine event loop driven
// by change notifications, timers, and user commands.
type Engine struct {
	store    tree.Store
	cfg      *config.Config
	attestor auth.Attestor

	playerID string
	code     string
	isHost   bool

	session *game.Session
	myCards []game.Card

	// playing is the local submission guard: set the instant a play begins,
	// cleared only once the remote write settles.
	playing bool
	// resolving is the local resolution guard: prevents this engine from
	// scheduling a second resolution while one is pending. Cross-client
	// duplication is handled by the transitions being no-ops once their
	// precondition is gone.
	resolving bool
	// warAdvanceScheduled dampens duplicate declared->face_down timers.
	warAdvanceScheduled bool

	endedNotified bool

	actions       chan action
	notifications chan Notification
	done          chan struct{}

	sessionSub tree.Subscription
	playersSub tree.Subscription
}

// NewEngine creates an engine for one player. The participant id is
// generated locally; uniqueness is probabilistic.
func NewEngine(store tree.Store, cfg *config.Config, attestor auth.Attestor) *Engine {
	return &Engine{
		store:         store,
		cfg:           cfg,
		attestor:      attestor,
		playerID:      newPlayerID(),
		actions:       make(chan action, 64),
		notifications: make(chan Notification, 64),
		done:          make(chan struct{}),
	}
}

func newPlayerID() string {
	return "player_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + strconv.Itoa(rand.Intn(1000))
}

// PlayerID returns this engine's participant id.
func (e *Engine) PlayerID() string { return e.playerID }

// Code returns the joined session code, or "" before joining.
func (e *Engine) Code() string { return e.code }

// IsHost reports whether this engine created the session.
func (e *Engine) IsHost() bool { return e.isHost }

// Notifications is the stream consumed by the UI layer.
func (e *Engine) Notifications() <-chan Notification { return e.notifications }

// Done is closed when the engine stops; consumers of Notifications select on
// it since the stream channel itself is never closed.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Close cancels subscriptions and stops the loop. Outstanding writes may
// still land; there is no cancellation of in-flight remote operations.
func (e *Engine) Close() {
	select {
	case <-e.done:
		return
	default:
	}
	if e.sessionSub != nil {
		e.sessionSub.Cancel()
	}
	if e.playersSub != nil {
		e.playersSub.Cancel()
	}
	close(e.done)
}

// run is the engine's event loop. Started once a session is joined.
func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case act := <-e.actions:
			e.handle(act)
		}
	}
}

func (e *Engine) handle(act action) {
	switch act.typ {
	case actionSessionSnapshot:
		e.handleSessionSnapshot(act.raw)
	case actionPlayersSnapshot:
		e.handlePlayersSnapshot(act.raw)
	case actionSetName:
		act.reply <- e.handleSetName(act.name)
	case actionStartGame:
		act.reply <- e.handleStartGame()
	case actionPlayCard:
		act.reply <- e.handlePlayCard()
	case actionExitGame:
		act.reply <- e.handleExitGame()
	case actionAdvanceWarStage:
		e.handleAdvanceWarStage()
	case actionResolveRound:
		e.handleResolveRound()
	case actionResolveWar:
		e.handleResolveWar()
	case actionPlaySettled:
		e.handlePlaySettled(act.card, act.err)
	}
}

// post delivers an action to the loop unless the engine is closed.
func (e *Engine) post(act action) {
	select {
	case e.actions <- act:
	case <-e.done:
		if act.reply != nil {
			act.reply <- nil
		}
	}
}

// command posts a user command and waits for the loop's verdict.
func (e *Engine) command(act action) error {
	act.reply = make(chan error, 1)
	e.post(act)
	return <-act.reply
}

// notify surfaces a notification to the UI without ever blocking the loop;
// full consumers miss intermediate frames, not the stream.
func (e *Engine) notify(n Notification) {
	select {
	case e.notifications <- n:
	default:
	}
}

// after posts an action to the loop once d has elapsed, unless the engine
// closes first.
func (e *Engine) after(d time.Duration, act action) {
	go func() {
		select {
		case <-time.After(d):
			e.post(act)
		case <-e.done:
		}
	}()
}

// handleSessionSnapshot decodes the shared document and drives every
// transition whose precondition the new state satisfies.
func (e *Engine) handleSessionSnapshot(raw json.RawMessage) {
	if raw == nil {
		// Session removed remotely.
		e.session = nil
		if !e.endedNotified {
			e.endedNotified = true
			e.notify(Notification{Kind: NotifyEnded, Message: "Game has ended"})
		}
		return
	}

	var s game.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		slog.Error("decoding session snapshot", "tag", "client", "game", e.code, "err", err)
		return
	}
	e.session = &s

	if me, ok := s.Players[e.playerID]; ok && !e.playing {
		// Adopt the remote view of our own hand unless a play is in flight
		// (the optimistic local pop has not landed yet).
		e.myCards = me.Cards
	}

	e.notify(Notification{Kind: NotifySession, Session: &s, Message: s.Message})

	if s.Status == game.StatusEnded {
		if !e.endedNotified {
			e.endedNotified = true
			e.notify(Notification{Kind: NotifyEnded, Message: endedMessage(&s)})
		}
		return
	}
	if s.Status != game.StatusPlaying {
		return
	}

	if s.WarState {
		e.evaluateWar(&s)
		return
	}
	e.warAdvanceScheduled = false
	if game.RoundComplete(&s) && !e.resolving {
		e.resolving = true
		e.after(time.Duration(e.cfg.ResolveDelayMS)*time.Millisecond, action{typ: actionResolveRound})
	}
}

// evaluateWar schedules the war transition the current snapshot calls for.
func (e *Engine) evaluateWar(s *game.Session) {
	contenders, _ := game.WarContenders(s)

	// Zero or one contender left: the war short-circuits regardless of stage.
	if len(contenders) <= 1 && !e.resolving {
		e.resolving = true
		e.after(time.Duration(e.cfg.ResolveDelayMS)*time.Millisecond, action{typ: actionResolveWar})
		return
	}

	switch s.WarStage {
	case game.WarStageDeclared:
		// Dramatic pause before collecting cards. Purely presentational;
		// a client arriving after the delay reaches the right stage from
		// the persisted state alone.
		if !e.warAdvanceScheduled {
			e.warAdvanceScheduled = true
			e.after(time.Duration(e.cfg.WarDeclareDelayMS)*time.Millisecond, action{typ: actionAdvanceWarStage})
		}
	case game.WarStageFaceDown:
		e.warAdvanceScheduled = false
		if game.WarStageComplete(s) {
			e.commit(map[string]any{
				e.sessionField("warStage"): game.WarStageFaceUp,
				e.sessionField("message"):  "Face-down cards are in. Play your face-up card!",
			})
		}
	case game.WarStageFaceUp:
		if game.WarStageComplete(s) && !e.resolving {
			e.resolving = true
			e.after(time.Duration(e.cfg.ResolveDelayMS)*time.Millisecond, action{typ: actionResolveWar})
		}
	}
}

func endedMessage(s *game.Session) string {
	if s.Winner == "" {
		return "Game over, no winner"
	}
	if p, ok := s.Players[s.Winner]; ok && p.Name != "" {
		return "Game over! " + p.Name + " wins!"
	}
	return "Game over!"
}

// handlePlayersSnapshot surfaces the participants subtree to the UI as its
// own stream (lobby list, card counts).
func (e *Engine) handlePlayersSnapshot(raw json.RawMessage) {
	players := make(map[string]game.Participant)
	if raw != nil {
		if err := json.Unmarshal(raw, &players); err != nil {
			slog.Error("decoding players snapshot", "tag", "client", "game", e.code, "err", err)
			return
		}
	}
	e.notify(Notification{Kind: NotifyPlayers, Players: players})
}

// commit writes resolution updates, preferring a compare-and-swap on the
// session revision when the store supports it so concurrent resolvers
// cannot interleave. A conflict means another client already resolved;
// the attempt is logged and abandoned without rollback.
func (e *Engine) commit(updates map[string]any) {
	cond, ok := e.store.(tree.ConditionalStore)
	if !ok || e.session == nil {
		if err := e.store.Update(context.Background(), updates); err != nil {
			slog.Warn("resolution write failed", "tag", "client", "game", e.code, "err", err)
		}
		return
	}
	expected := e.session.Rev
	updates[e.sessionField("rev")] = expected + 1
	err := cond.UpdateIf(context.Background(), e.sessionField("rev"), expected, updates)
	if err == tree.ErrConflict {
		slog.Debug("resolution lost race, abandoning", "tag", "client", "game", e.code, "rev", expected)
		return
	}
	if err != nil {
		slog.Warn("resolution write failed", "tag", "client", "game", e.code, "err", err)
	}
}

func (e *Engine) sessionPath() string {
	return "games/" + e.code
}

func (e *Engine) sessionField(field string) string {
	return e.sessionPath() + "/" + field
}

func (e *Engine) playerField(playerID, field string) string {
	return e.sessionPath() + "/players/" + playerID + "/" + field
}
