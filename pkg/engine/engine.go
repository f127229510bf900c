package engine

import (
	"sync"

	"ukernel/pkg/logging"
	"ukernel/pkg/process"
	"ukernel/pkg/syscalls"
)

// AbnormalStatus is the exit status of a program that panicked.
const AbnormalStatus = -1

// Engine runs each program on its own goroutine.
type Engine struct {
	procs *process.Manager
	log   logging.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates an Engine that reports terminations to procs.
func New(procs *process.Manager, logger logging.Logger) *Engine {
	return &Engine{
		procs: procs,
		log:   logging.OrNull(logger),
	}
}

// Start runs prog for the process bound to c.
func (e *Engine) Start(c *syscalls.Caller, prog syscalls.Program) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return syscalls.ErrEngineStopped
	}
	e.wg.Add(1)
	go e.run(c, prog)
	return nil
}

// run executes prog. A returned status becomes a normal exit. A panic, or
// a goroutine that ends without the process exiting, is reported as an
// abnormal exit with AbnormalStatus.
func (e *Engine) run(c *syscalls.Caller, prog syscalls.Program) {
	defer e.wg.Done()

	p := c.Process()
	returned := false
	defer func() {
		r := recover()
		if r != nil {
			e.log.Error("process %d: %s crashed: %v", p.PID, p.Command, r)
		}
		if returned && r == nil {
			return
		}
		if p.IsAlive() {
			_ = e.procs.Exit(p, AbnormalStatus, false)
		}
	}()

	status := prog(c)
	returned = true
	c.Dispatch(syscalls.Exit{Status: status})
}

// Stop refuses further Start calls.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
}

// Wait blocks until every started program has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}
