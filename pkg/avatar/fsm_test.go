package avatar

import (
	"errors"
	"sync"
	"testing"
)

type captureListener struct {
	mu      sync.Mutex
	changes []StateChange
}

func (c *captureListener) OnStateChange(event StateChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, event)
}

func (c *captureListener) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

func TestStateMachineHappyPath(t *testing.T) {
	sm := newStateMachine()
	listener := &captureListener{}
	sm.AddListener(listener)

	steps := []struct {
		to     State
		reason string
	}{
		{StateListening, "listen requested"},
		{StateProcessing, "final transcript"},
		{StateSpeaking, "response stream opened"},
		{StateIdle, "session complete"},
	}
	for _, step := range steps {
		if err := sm.Transition(step.to, step.reason); err != nil {
			t.Fatalf("transition to %s: %v", step.to, err)
		}
	}
	if sm.State() != StateIdle {
		t.Fatalf("expected idle, got %s", sm.State())
	}
	if listener.Count() != len(steps) {
		t.Fatalf("expected %d state changes, got %d", len(steps), listener.Count())
	}
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		path []State
		to   State
	}{
		{"idle to speaking", nil, StateSpeaking},
		{"idle to processing", nil, StateProcessing},
		{"listening to speaking", []State{StateListening}, StateSpeaking},
		{"error to listening", []State{StateListening, StateError}, StateListening},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sm := newStateMachine()
			for _, s := range tc.path {
				if err := sm.Transition(s, "setup"); err != nil {
					t.Fatalf("setup transition to %s: %v", s, err)
				}
			}
			err := sm.Transition(tc.to, "invalid")
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidTransitionError, got %v", err)
			}
		})
	}
}

func TestStateMachineErrorReachableFromAnyState(t *testing.T) {
	paths := [][]State{
		nil,
		{StateListening},
		{StateListening, StateProcessing},
		{StateListening, StateProcessing, StateSpeaking},
	}
	for _, path := range paths {
		sm := newStateMachine()
		for _, s := range path {
			if err := sm.Transition(s, "setup"); err != nil {
				t.Fatalf("setup transition to %s: %v", s, err)
			}
		}
		if err := sm.Transition(StateError, "collaborator failure"); err != nil {
			t.Fatalf("error transition from %s: %v", sm.State(), err)
		}
		if err := sm.Transition(StateIdle, "error reset"); err != nil {
			t.Fatalf("reset transition: %v", err)
		}
	}
}

func TestStateMachineSpeakingToListeningForAutoListen(t *testing.T) {
	sm := newStateMachine()
	for _, s := range []State{StateListening, StateProcessing, StateSpeaking} {
		if err := sm.Transition(s, "setup"); err != nil {
			t.Fatalf("setup transition to %s: %v", s, err)
		}
	}
	if err := sm.Transition(StateListening, "auto listen"); err != nil {
		t.Fatalf("speaking to listening: %v", err)
	}
}
