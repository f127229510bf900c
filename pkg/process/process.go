package process

import (
	"sync"
	"time"

	"ukernel/pkg/fdtable"
)

// NoParent is the ParentPID of processes created without a parent.
const NoParent = 0

// Process represents a process in the system.
type Process struct {
	// PID is the unique process identifier. PIDs are never reused.
	PID int
	// ParentPID is the PID of the parent process, or NoParent.
	ParentPID int
	// Command is the image path the process was started from.
	Command string
	// Args is the argument vector passed to the image.
	Args []string
	// CreatedAt is when the process was created.
	CreatedAt time.Time
	// Files is the descriptor table of the process.
	Files *fdtable.Table

	parent *Process

	// children is guarded by the manager's lock.
	children map[int]*child

	// done is closed once the process has exited.
	done chan struct{}

	// mu protects the fields below.
	mu         sync.Mutex
	state      ProcessState
	exitCode   int
	normal     bool
	finishedAt time.Time
}

// child is a parent's record of one of its children.
type child struct {
	proc    *Process
	joining bool
	joined  bool
}

// newProcess creates a running process with a fresh descriptor table.
func newProcess(pid int, parent *Process, command string, args []string, files *fdtable.Table) *Process {
	p := &Process{
		PID:       pid,
		ParentPID: NoParent,
		Command:   command,
		Args:      args,
		CreatedAt: time.Now(),
		Files:     files,
		parent:    parent,
		children:  make(map[int]*child),
		done:      make(chan struct{}),
		state:     StateRunning,
	}
	if parent != nil {
		p.ParentPID = parent.PID
	}
	return p
}

// GetState atomically gets the process state.
func (p *Process) GetState() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitStatus returns the exit code and whether the process exited
// normally. It is meaningful only once the process has exited.
func (p *Process) ExitStatus() (code int, normal bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.normal
}

// FinishedAt returns when the process exited, or the zero time.
func (p *Process) FinishedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finishedAt
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRoot reports whether the process was created without a parent.
func (p *Process) IsRoot() bool {
	return p.parent == nil
}

// FileCount returns the number of bound descriptors.
func (p *Process) FileCount() int {
	return p.Files.Len()
}
