package gameerrors

import (
	"errors"
	"fmt"
)

// Validation sentinel errors. Rejected before any write reaches the shared
// tree; shared by the client and ws packages to avoid circular imports.
var (
	ErrGameNotFound     = errors.New("game not found")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrGameEnded        = errors.New("game has ended")
	ErrEmptyName        = errors.New("name must not be empty")
	ErrNameTooLong      = errors.New("name is too long")
	ErrNotHost          = errors.New("only the host can start the game")
	ErrTooFewPlayers    = errors.New("need at least 2 players to start")
	ErrTooManyPlayers   = errors.New("maximum 10 players allowed")
	ErrNoCards          = errors.New("no cards left to play")
	ErrAlreadyPlayed    = errors.New("already played a card this round")
	ErrNotInWar         = errors.New("not a contender in the current war")
	ErrPlayInFlight     = errors.New("a play is already in progress")
	ErrNotVerified      = errors.New("client attestation required")
	ErrNotInSession     = errors.New("not joined to a session")
)

// TransportError wraps a failure talking to the shared tree store. The
// failing operation's optimistic local state is rolled back and the user
// may retry; nothing is retried automatically.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError for the named operation.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// InvariantViolation marks inconsistent shared state observed during
// resolution. It is logged and the war fields are force-reset; recovery is
// best effort.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}
