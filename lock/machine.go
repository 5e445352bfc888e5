// Package lock holds the per-app lock state machine.
//
//	Locked --Begin--> Authenticating --Succeed--> Unlocked
//	                  Authenticating --Fail-----> Locked
//	any    --Lock---> Locked
package lock

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidTransition = errors.New("invalid lock transition")

	// ErrStale reports an attempt that was abandoned by a later Lock.
	ErrStale = errors.New("stale authentication attempt")
)

type State int

const (
	Locked State = iota
	Authenticating
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Authenticating:
		return "authenticating"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason records why an app was locked.
type Reason string

const (
	ReasonExpired        Reason = "expired"
	ReasonClosed         Reason = "closed"
	ReasonLogout         Reason = "logout"
	ReasonAbandoned      Reason = "abandoned"
	ReasonExternal       Reason = "external"
	ReasonTrackerFailure Reason = "tracker_failure"
)

// Attempt identifies one authentication attempt started by Begin.
type Attempt struct {
	generation uint64
}

// Machine is safe for concurrent use.
type Machine struct {
	mu         sync.Mutex
	state      State
	generation uint64
	reason     Reason
}

// New returns a machine in the Locked state.
func New() *Machine {
	return &Machine{state: Locked}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastReason is the reason given to the most recent Lock.
func (m *Machine) LastReason() Reason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

func (m *Machine) Begin() (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Locked {
		return Attempt{}, fmt.Errorf("%w: begin from %s", ErrInvalidTransition, m.state)
	}
	m.state = Authenticating
	return Attempt{generation: m.generation}, nil
}

func (m *Machine) Succeed(a Attempt) error {
	return m.finish(a, Unlocked)
}

func (m *Machine) Fail(a Attempt) error {
	return m.finish(a, Locked)
}

// Current reports whether a is still the machine's live attempt.
func (m *Machine) Current(a Attempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Authenticating && a.generation == m.generation
}

// Unlock moves straight to Unlocked, for apps whose stored session is
// already valid when opened.
func (m *Machine) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Authenticating {
		return fmt.Errorf("%w: unlock while authenticating", ErrInvalidTransition)
	}
	m.state = Unlocked
	return nil
}

// Lock moves to Locked from any state and abandons any in-flight attempt.
// It reports whether the state changed.
func (m *Machine) Lock(reason Reason) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.reason = reason
	if m.state == Locked {
		return false
	}
	m.state = Locked
	return true
}

func (m *Machine) finish(a Attempt, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.generation != m.generation {
		return ErrStale
	}
	if m.state != Authenticating {
		return fmt.Errorf("%w: finish from %s", ErrInvalidTransition, m.state)
	}
	m.state = to
	return nil
}
