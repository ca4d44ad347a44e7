package avatar

import (
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes pipeline state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// stateMachine validates and applies pipeline state transitions. The
// engine's dispatch goroutine is its only caller, but the lock keeps
// State() safe to read from anywhere.
type stateMachine struct {
	mu           sync.RWMutex
	currentState State

	listeningStartTime time.Time
	speakingStartTime  time.Time

	stateChangeListeners []StateListener
}

func newStateMachine() *stateMachine {
	return &stateMachine{currentState: StateIdle}
}

// State returns the current state.
func (sm *stateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// transitionValid checks if a state transition is valid (must be called
// with lock held). Error is reachable from any state; it only resets to
// Idle.
func (sm *stateMachine) transitionValid(from, to State) bool {
	if to == StateError {
		return from != StateError
	}
	validTransitions := map[State][]State{
		StateIdle:       {StateListening},
		StateListening:  {StateProcessing, StateIdle},
		StateProcessing: {StateSpeaking, StateIdle},
		StateSpeaking:   {StateIdle, StateListening},
		StateError:      {StateIdle},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (sm *stateMachine) Transition(state State, reason string) error {
	sm.mu.Lock()

	if !sm.transitionValid(sm.currentState, state) {
		from := sm.currentState
		sm.mu.Unlock()
		return &InvalidTransitionError{From: from, To: state}
	}

	oldState := sm.currentState
	sm.currentState = state

	switch state {
	case StateListening:
		sm.listeningStartTime = time.Now()
	case StateSpeaking:
		sm.speakingStartTime = time.Now()
	}

	event := StateChange{
		FromState: oldState,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	// Notify outside the lock to avoid listener deadlocks.
	listeners := make([]StateListener, len(sm.stateChangeListeners))
	copy(listeners, sm.stateChangeListeners)
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (sm *stateMachine) AddListener(listener StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stateChangeListeners = append(sm.stateChangeListeners, listener)
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
