package utterance

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// State is the export state of one utterance.
type State int

const (
	// StateOpen - partials may still be published.
	StateOpen State = iota
	// StateFinalEmitted - the final record went out.
	StateFinalEmitted
	// StateClosed - nothing more will be published.
	StateClosed
	// StateDropped - abandoned without a final.
	// This is a terminal state. Nothing is better than a truncated final.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinalEmitted:
		return "FINAL_EMITTED"
	case StateClosed:
		return "CLOSED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal reports whether no further records may be published.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDropped
}

// Errors for invalid state transitions.
var (
	ErrClosed              = errors.New("utterance is closed")
	ErrFinalAlreadyEmitted = errors.New("final already emitted for this utterance")
	ErrPartialAfterFinal   = errors.New("cannot emit partial after final")
)

// Lifecycle tracks one utterance of one speaker.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	OPEN ──EmitFinal──→ FINAL_EMITTED ──Close──→ CLOSED
//	  │
//	  └──Drop──→ DROPPED
//
// Rules:
//   - OPEN: partials may be emitted (many), the final may be emitted (once)
//   - FINAL_EMITTED: no more partials, no second final, can close
//   - CLOSED, DROPPED: every emit returns an error
type Lifecycle struct {
	mu      sync.RWMutex
	id      string
	speaker string
	state   State
}

// NewLifecycle creates an OPEN utterance.
func NewLifecycle(id, speaker string) *Lifecycle {
	return &Lifecycle{id: id, speaker: speaker, state: StateOpen}
}

// ID returns the utterance ID.
func (l *Lifecycle) ID() string {
	return l.id
}

func (l *Lifecycle) Speaker() string {
	return l.speaker
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsOpen reports whether partials are still accepted.
func (l *Lifecycle) IsOpen() bool {
	return l.State() == StateOpen
}

// EmitPartial checks that a partial may be published.
func (l *Lifecycle) EmitPartial() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch l.state {
	case StateOpen:
		// OK - partials allowed while open
		return nil
	case StateFinalEmitted:
		return ErrPartialAfterFinal
	default:
		return ErrClosed
	}
}

// EmitFinal moves OPEN to FINAL_EMITTED.
func (l *Lifecycle) EmitFinal() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		// Transition to FINAL_EMITTED
		l.state = StateFinalEmitted
		return nil
	case StateFinalEmitted:
		return ErrFinalAlreadyEmitted
	default:
		return ErrClosed
	}
}

// Close ends the utterance. Idempotent; a dropped utterance stays dropped.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateDropped {
		l.state = StateClosed
	}
}

// Drop abandons an utterance that never got its final.
//
// Scenarios:
//   - the session closes mid-turn
//   - the transport disconnects before the user's final transcript
//   - a bot turn is interrupted and never reports stopped speaking
//
// Returns false if it was already terminal or its final went out.
func (l *Lifecycle) Drop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return false // Already final or terminal
	}
	l.state = StateDropped
	return true
}
