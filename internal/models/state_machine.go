package models

import (
	"fmt"
	"time"
)

// SessionState is the coarse state of a trading session.
type SessionState string

const (
	// StateIdle means no condor has been entered, or all were closed.
	StateIdle SessionState = "idle"
	// StateInPosition means at least one condor was entered and the next
	// decision is pending.
	StateInPosition SessionState = "in_position"
)

// Transition conditions.
const (
	ConditionTradeEntered  = "trade_entered"
	ConditionPositionsFlat = "positions_flat"
)

// StateTransition defines a valid state transition
type StateTransition struct {
	From        SessionState
	To          SessionState
	Condition   string
	Description string
}

// ValidTransitions lists every allowed session transition.
var ValidTransitions = []StateTransition{
	{StateIdle, StateInPosition, ConditionTradeEntered, "First condor of the session entered"},
	{StateInPosition, StateInPosition, ConditionTradeEntered, "Additional condor entered"},
	{StateInPosition, StateIdle, ConditionPositionsFlat, "No option positions remain open"},
}

// SessionMachine manages session state transitions
type SessionMachine struct {
	transitionTime  time.Time
	transitionCount map[SessionState]int
	currentState    SessionState
	previousState   SessionState
}

// NewSessionMachine creates a machine in StateIdle.
func NewSessionMachine() *SessionMachine {
	return &SessionMachine{
		currentState:    StateIdle,
		previousState:   StateIdle,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[SessionState]int),
	}
}

// GetCurrentState returns the current state
func (sm *SessionMachine) GetCurrentState() SessionState {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *SessionMachine) GetPreviousState() SessionState {
	return sm.previousState
}

// GetTransitionTime returns when the last transition happened.
func (sm *SessionMachine) GetTransitionTime() time.Time {
	return sm.transitionTime
}

// GetTransitionCount returns how many times the machine entered state.
func (sm *SessionMachine) GetTransitionCount(state SessionState) int {
	return sm.transitionCount[state]
}

// IsValidTransition checks if a transition is valid
func (sm *SessionMachine) IsValidTransition(to SessionState, condition string) error {
	for _, t := range ValidTransitions {
		if t.From == sm.currentState && t.To == to && t.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// Transition moves to a new state
func (sm *SessionMachine) Transition(to SessionState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	return nil
}

// GetStateDescription returns a human-readable description of the current state
func (sm *SessionMachine) GetStateDescription() string {
	switch sm.currentState {
	case StateIdle:
		return "No condor entered, waiting for an eligible window"
	case StateInPosition:
		return "Condor entered, monitoring risk until the next decision"
	default:
		return "Unknown state"
	}
}
