package process

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ukernel/pkg/fdtable"
	"ukernel/pkg/logging"
)

// Process management errors.
var (
	ErrInvalidPID     = errors.New("process: invalid PID")
	ErrInvalidCommand = errors.New("process: invalid command")
	ErrNotChild       = errors.New("process: not a child of the caller")
	ErrAlreadyJoined  = errors.New("process: child already joined")
)

// CreateConfig contains configuration for creating a new process.
type CreateConfig struct {
	// Command is the image path.
	Command string
	// Args is the argument vector.
	Args []string
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Limits are enforced on every new process.
	Limits Limits
	// Console backs the standard streams of every process.
	Console *fdtable.Console
	// Logger receives lifecycle events. Nil discards them.
	Logger logging.Logger
}

// JoinResult is what a successful Join learns about the child.
type JoinResult struct {
	PID    int
	Status int
	// Normal is false when the child was terminated by the engine rather
	// than exiting by itself.
	Normal bool
}

// Manager manages all processes in the system.
type Manager struct {
	limits  Limits
	console *fdtable.Console
	log     logging.Logger

	// mu protects the process table, every process's children map and
	// the counters below.
	mu        sync.Mutex
	processes map[int]*Process
	lastPID   int
	live      int

	done     chan struct{}
	doneOnce sync.Once
}

// NewManager creates a process manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Limits.MaxOpenFiles <= 0 {
		opts.Limits.MaxOpenFiles = fdtable.DefaultMaxOpen
	}
	return &Manager{
		limits:    opts.Limits,
		console:   opts.Console,
		log:       logging.OrNull(opts.Logger),
		processes: make(map[int]*Process),
		done:      make(chan struct{}),
	}
}

// Limits returns the limits enforced by the manager.
func (pm *Manager) Limits() Limits {
	return pm.limits
}

// CreateProcess creates a process without a parent.
func (pm *Manager) CreateProcess(config *CreateConfig) (*Process, error) {
	return pm.Spawn(nil, config)
}

// Spawn creates a running child of parent with an empty descriptor table.
// Descriptors are not inherited. A nil parent creates a root process. On
// error nothing is allocated, not even a PID.
func (pm *Manager) Spawn(parent *Process, config *CreateConfig) (*Process, error) {
	if config == nil || config.Command == "" {
		return nil, ErrInvalidCommand
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if parent != nil && parent.IsTerminated() {
		return nil, ErrInvalidTransition
	}
	if err := pm.limits.CheckProcesses(pm.live); err != nil {
		return nil, err
	}

	pm.lastPID++
	files := fdtable.New(pm.console, pm.limits.MaxOpenFiles)
	p := newProcess(pm.lastPID, parent, config.Command, config.Args, files)

	pm.processes[p.PID] = p
	pm.live++
	if parent != nil {
		parent.children[p.PID] = &child{proc: p}
	}

	pm.log.Verbose("process %d: created %s (parent %d)", p.PID, p.Command, p.ParentPID)
	return p, nil
}

// Abort removes a process that never ran, as if Spawn had failed. Its PID
// is not handed out again.
func (pm *Manager) Abort(p *Process) {
	if err := p.terminate(-1, false); err != nil {
		return
	}
	p.Files.CloseAll()

	pm.mu.Lock()
	delete(pm.processes, p.PID)
	if p.parent != nil {
		delete(p.parent.children, p.PID)
	}
	pm.live--
	pm.checkDoneLocked()
	pm.mu.Unlock()

	close(p.done)
	pm.log.Verbose("process %d: aborted", p.PID)
}

// Exit terminates p with status. Every open descriptor is closed, joiners
// are woken, exited children that can no longer be joined are reaped and
// running children are orphaned. normal is false when the engine ended the
// process rather than the process calling exit.
func (pm *Manager) Exit(p *Process, status int, normal bool) error {
	if err := p.terminate(status, normal); err != nil {
		return err
	}
	closed := p.Files.CloseAll()

	pm.mu.Lock()
	for pid, c := range p.children {
		if c.proc.IsTerminated() {
			delete(pm.processes, pid)
		}
	}
	if p.parent == nil || p.parent.IsTerminated() {
		delete(pm.processes, p.PID)
	}
	pm.live--
	pm.checkDoneLocked()
	pm.mu.Unlock()

	close(p.done)
	pm.log.Verbose("process %d: exited with status %d (normal=%t, closed %d descriptors)",
		p.PID, status, normal, closed)
	return nil
}

// Join waits for the child pid of parent to exit and returns its status.
// Each child can be joined once. Join blocks until the child exits or ctx
// is done; in the latter case the child stays joinable.
func (pm *Manager) Join(ctx context.Context, parent *Process, pid int) (JoinResult, error) {
	pm.mu.Lock()
	c, ok := parent.children[pid]
	if !ok {
		pm.mu.Unlock()
		return JoinResult{}, ErrNotChild
	}
	if c.joined || c.joining {
		pm.mu.Unlock()
		return JoinResult{}, ErrAlreadyJoined
	}
	c.joining = true
	pm.mu.Unlock()

	select {
	case <-c.proc.done:
	case <-ctx.Done():
		pm.mu.Lock()
		c.joining = false
		pm.mu.Unlock()
		return JoinResult{}, ctx.Err()
	}

	pm.mu.Lock()
	c.joining = false
	c.joined = true
	delete(pm.processes, pid)
	pm.mu.Unlock()

	status, normal := c.proc.ExitStatus()
	pm.log.Verbose("process %d: joined child %d (status %d)", parent.PID, pid, status)
	return JoinResult{PID: pid, Status: status, Normal: normal}, nil
}

// checkDoneLocked closes the done channel when no process is left.
func (pm *Manager) checkDoneLocked() {
	if pm.live == 0 {
		pm.doneOnce.Do(func() { close(pm.done) })
	}
}

// Done returns a channel closed when the last live process exits.
func (pm *Manager) Done() <-chan struct{} {
	return pm.done
}

// GetProcess retrieves a process by PID. Reaped processes are not found.
func (pm *Manager) GetProcess(pid int) (*Process, error) {
	if pid <= 0 {
		return nil, ErrInvalidPID
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	p, ok := pm.processes[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	return p, nil
}

// GetProcesses returns all processes in the table ordered by PID.
func (pm *Manager) GetProcesses() []*Process {
	pm.mu.Lock()
	processes := make([]*Process, 0, len(pm.processes))
	for _, p := range pm.processes {
		processes = append(processes, p)
	}
	pm.mu.Unlock()

	sort.Slice(processes, func(i, j int) bool { return processes[i].PID < processes[j].PID })
	return processes
}

// GetChildren returns the PIDs of parent's children that have not been
// joined, in ascending order.
func (pm *Manager) GetChildren(parent *Process) []int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pids := make([]int, 0, len(parent.children))
	for pid, c := range parent.children {
		if !c.joined {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids
}

// CountProcesses returns the number of processes in the table, including
// exited ones that have not been reaped.
func (pm *Manager) CountProcesses() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.processes)
}

// LiveProcesses returns the number of processes that have not exited.
func (pm *Manager) LiveProcesses() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.live
}

// IsProcessAlive checks if a process is still alive.
func (pm *Manager) IsProcessAlive(pid int) bool {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return false
	}
	return p.IsAlive()
}
