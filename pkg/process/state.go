package process

import (
	"errors"
	"time"
)

// State transition errors.
var (
	ErrInvalidTransition = errors.New("process: invalid state transition")
	ErrProcessNotFound   = errors.New("process: process not found")
)

// ProcessState represents the state of a process in the system.
type ProcessState string

const (
	// StateRunning indicates the process has been created and not yet exited.
	StateRunning ProcessState = "running"
	// StateExited indicates the process has terminated. It is terminal.
	StateExited ProcessState = "exited"
)

// StateTransition represents a valid state transition.
type StateTransition struct {
	From ProcessState
	To   ProcessState
}

// ValidTransitions defines all valid state transitions.
var ValidTransitions = []StateTransition{
	// Explicit exit or termination reported by the engine.
	{From: StateRunning, To: StateExited},
}

// IsValidTransition checks if a state transition is valid.
func IsValidTransition(from, to ProcessState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// terminate moves p to Exited and records its status.
func (p *Process) terminate(exitCode int, normal bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !IsValidTransition(p.state, StateExited) {
		return ErrInvalidTransition
	}

	p.state = StateExited
	p.exitCode = exitCode
	p.normal = normal
	p.finishedAt = time.Now()

	return nil
}

// IsAlive returns true if the process has not exited.
func (p *Process) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning
}

// IsTerminated returns true if the process has exited.
func (p *Process) IsTerminated() bool {
	return !p.IsAlive()
}

// TotalLifetime returns the time since creation, or the time the process
// ran for once it has exited.
func (p *Process) TotalLifetime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateExited {
		return p.finishedAt.Sub(p.CreatedAt)
	}
	return time.Since(p.CreatedAt)
}
