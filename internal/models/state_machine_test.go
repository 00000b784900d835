package models

import (
	"testing"
	"time"
)

func TestSessionMachine_BasicTransitions(t *testing.T) {
	sm := NewSessionMachine()

	if sm.GetCurrentState() != StateIdle {
		t.Errorf("Initial state should be StateIdle, got %s", sm.GetCurrentState())
	}

	if err := sm.Transition(StateInPosition, ConditionTradeEntered); err != nil {
		t.Errorf("Valid transition failed: %v", err)
	}
	if sm.GetCurrentState() != StateInPosition {
		t.Errorf("State should be StateInPosition, got %s", sm.GetCurrentState())
	}
	if sm.GetPreviousState() != StateIdle {
		t.Errorf("Previous state should be StateIdle, got %s", sm.GetPreviousState())
	}

	// Further entries stay in position
	if err := sm.Transition(StateInPosition, ConditionTradeEntered); err != nil {
		t.Errorf("Repeat entry failed: %v", err)
	}
	if got := sm.GetTransitionCount(StateInPosition); got != 2 {
		t.Errorf("InPosition count = %d, want 2", got)
	}

	if err := sm.Transition(StateIdle, ConditionPositionsFlat); err != nil {
		t.Errorf("Flat transition failed: %v", err)
	}
	if sm.GetCurrentState() != StateIdle {
		t.Errorf("State should be StateIdle, got %s", sm.GetCurrentState())
	}
}

func TestSessionMachine_InvalidTransitions(t *testing.T) {
	sm := NewSessionMachine()

	tests := []struct {
		to        SessionState
		condition string
	}{
		{StateIdle, ConditionPositionsFlat},
		{StateInPosition, "invalid"},
		{StateInPosition, ""},
		{SessionState("closed"), ConditionTradeEntered},
	}
	for _, tt := range tests {
		if err := sm.Transition(tt.to, tt.condition); err == nil {
			t.Errorf("Transition to %s with %q should fail", tt.to, tt.condition)
		}
		if sm.GetCurrentState() != StateIdle {
			t.Errorf("State should remain StateIdle after failed transition, got %s", sm.GetCurrentState())
		}
	}
}

func TestSessionMachine_DescriptionAndTransitionTime(t *testing.T) {
	sm := NewSessionMachine()
	idleDesc := sm.GetStateDescription()
	start := sm.GetTransitionTime()

	time.Sleep(time.Millisecond)
	if err := sm.Transition(StateInPosition, ConditionTradeEntered); err != nil {
		t.Fatal(err)
	}

	if sm.GetStateDescription() == idleDesc || sm.GetStateDescription() == "Unknown state" {
		t.Errorf("Expected a distinct description for StateInPosition, got %q", sm.GetStateDescription())
	}
	if !sm.GetTransitionTime().After(start) {
		t.Errorf("Transition time should advance, got %v after %v", sm.GetTransitionTime(), start)
	}
}
