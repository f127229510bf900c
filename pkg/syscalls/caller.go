package syscalls

import (
	"context"
	"runtime"

	"ukernel/pkg/fdtable"
	"ukernel/pkg/process"
)

// Caller issues system calls on behalf of one process.
type Caller struct {
	ctx   context.Context
	layer *Layer
	proc  *process.Process
}

// PID returns the caller's process id.
func (c *Caller) PID() int { return c.proc.PID }

// Process returns the caller's process.
func (c *Caller) Process() *process.Process { return c.proc }

// Args returns the argument vector the process was started with.
func (c *Caller) Args() []string { return c.proc.Args }

// Context returns the context blocking calls observe.
func (c *Caller) Context() context.Context { return c.ctx }

// Dispatch performs req for the caller's process.
func (c *Caller) Dispatch(req Request) int {
	return c.layer.Dispatch(c.ctx, c.proc, req)
}

// Create creates name and returns a descriptor for it.
func (c *Caller) Create(name string) int {
	return c.Dispatch(Create{Name: name})
}

// Open opens name and returns a descriptor for it.
func (c *Caller) Open(name string) int {
	return c.Dispatch(Open{Name: name})
}

// Read reads up to len(buf) bytes from fd.
func (c *Caller) Read(fd int, buf []byte) int {
	return c.Dispatch(Read{FD: fd, Buf: buf, Len: len(buf)})
}

// Write writes buf to fd.
func (c *Caller) Write(fd int, buf []byte) int {
	return c.Dispatch(Write{FD: fd, Buf: buf, Len: len(buf)})
}

// Print writes s to standard output.
func (c *Caller) Print(s string) int {
	return c.Write(fdtable.Stdout, []byte(s))
}

// Close closes fd.
func (c *Caller) Close(fd int) int {
	return c.Dispatch(Close{FD: fd})
}

// Unlink removes name.
func (c *Caller) Unlink(name string) int {
	return c.Dispatch(Unlink{Name: name})
}

// Exec starts path with the first argc entries of argv and returns the
// child's PID.
func (c *Caller) Exec(path string, argc int, argv []*string) int {
	return c.Dispatch(Exec{Path: path, Argc: argc, Argv: argv})
}

// Spawn is Exec with a well-formed argument vector built from args.
func (c *Caller) Spawn(path string, args ...string) int {
	argv := make([]*string, len(args))
	for i := range args {
		argv[i] = &args[i]
	}
	return c.Exec(path, len(argv), argv)
}

// Join waits for child pid. It returns 1 if the child exited by itself and
// 0 if the engine terminated it.
func (c *Caller) Join(pid int, status *int) int {
	return c.Dispatch(Join{PID: pid, Status: status})
}

// Exit terminates the process with status and ends the calling goroutine.
// It must only be called from the goroutine running the program.
func (c *Caller) Exit(status int) {
	c.Dispatch(Exit{Status: status})
	runtime.Goexit()
}

// Halt stops the kernel and terminates the process with status 0. It
// returns only on failure.
func (c *Caller) Halt() int {
	if r := c.Dispatch(Halt{}); r < 0 {
		return r
	}
	c.Exit(0)
	return 0
}
