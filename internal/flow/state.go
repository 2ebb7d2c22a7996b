package flow

import (
	"errors"
	"fmt"
)

// State is one step of a conversational flow.
type State string

const (
	StateAwaitingSelection    State = "awaiting_selection"
	StateAwaitingFile         State = "awaiting_file"
	StateAwaitingInput        State = "awaiting_input"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateCommitted            State = "committed"
	StateCancelled            State = "cancelled"
	StateTimedOut             State = "timed_out"
	StateFailed               State = "failed"
)

// ErrStaleTransition is returned when a move is attempted from a state the
// session is no longer in, or from a session that already ended. Callers
// treat it as a no-op.
var ErrStaleTransition = errors.New("flow: stale transition")

var terminalStates = map[State]bool{
	StateCommitted: true,
	StateCancelled: true,
	StateTimedOut:  true,
	StateFailed:    true,
}

var validTransitions = map[State]map[State]bool{
	StateAwaitingSelection: {
		StateAwaitingInput: true,
		StateCancelled:     true,
		StateFailed:        true,
	},
	StateAwaitingFile: {
		StateAwaitingConfirmation: true,
		StateCancelled:            true,
		StateTimedOut:             true,
		StateFailed:               true,
	},
	StateAwaitingInput: {
		StateAwaitingConfirmation: true,
		StateCancelled:            true,
		StateTimedOut:             true,
		StateFailed:               true,
	},
	StateAwaitingConfirmation: {
		StateCommitted: true,
		StateCancelled: true,
		StateTimedOut:  true,
		StateFailed:    true,
	},
}

// Terminal reports whether s ends a flow.
func (s State) Terminal() bool { return terminalStates[s] }

// CanTransition reports whether moving from → to is legal.
func CanTransition(from, to State) bool {
	return validTransitions[from][to]
}

func checkTransition(from, to State) error {
	if from.Terminal() || !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrStaleTransition, from, to)
	}
	return nil
}
