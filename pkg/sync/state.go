package sync

import (
	"fmt"
	"sync"
)

// State is a stage of a sync run
type State string

const (
	StateInit           State = "init"
	StateComparingRoots State = "comparing_roots"
	StateWalkingPair    State = "walking_pair"
	StateRecursing      State = "recursing"
	StateDone           State = "done"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	StateInit:           {StateComparingRoots, StateFailed, StateCancelled},
	StateComparingRoots: {StateWalkingPair, StateDone, StateFailed, StateCancelled},
	StateWalkingPair:    {StateRecursing, StateDone, StateFailed, StateCancelled},
	StateRecursing:      {StateDone, StateFailed, StateCancelled},
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether a run may move from s to next
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// stateMachine guards the current state of one run
type stateMachine struct {
	mu       sync.Mutex
	current  State
	onChange func(from, to State)
}

func newStateMachine(onChange func(from, to State)) *stateMachine {
	return &stateMachine{current: StateInit, onChange: onChange}
}

func (m *stateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// reset puts the machine back in the Init state without notifying
func (m *stateMachine) reset() {
	m.mu.Lock()
	m.current = StateInit
	m.mu.Unlock()
}

// transition moves to next and notifies the observer outside the lock
func (m *stateMachine) transition(next State) error {
	m.mu.Lock()
	from := m.current
	if !from.CanTransition(next) {
		m.mu.Unlock()
		return fmt.Errorf("invalid state transition %s -> %s", from, next)
	}
	m.current = next
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, next)
	}
	return nil
}
