package syscalls

import (
	"context"
	"fmt"

	"ukernel/pkg/fdtable"
	"ukernel/pkg/filestore"
	"ukernel/pkg/logging"
	"ukernel/pkg/process"
)

// Program is a runnable program image. Its return value is the exit status
// of the process unless it calls Caller.Exit first.
type Program func(c *Caller) int

// Loader resolves an image path to a Program. It returns an error wrapping
// ErrNoImage when no image exists at path.
type Loader interface {
	Lookup(path string) (Program, error)
}

// Runner begins executing prog on behalf of the process bound to c. Start
// must not block on the program.
type Runner interface {
	Start(c *Caller, prog Program) error
}

// Options configures a Layer.
type Options struct {
	Store     *filestore.Store
	Processes *process.Manager
	Loader    Loader
	Runner    Runner
	// Halt is called by a successful halt. Nil makes halt a no-op.
	Halt   func()
	Logger logging.Logger
}

// Layer validates system calls and applies them to the file store, the
// caller's descriptor table and the process table.
type Layer struct {
	store  *filestore.Store
	procs  *process.Manager
	loader Loader
	runner Runner
	halt   func()
	log    logging.Logger
}

// New creates a Layer.
func New(opts Options) *Layer {
	halt := opts.Halt
	if halt == nil {
		halt = func() {}
	}
	return &Layer{
		store:  opts.Store,
		procs:  opts.Processes,
		loader: opts.Loader,
		runner: opts.Runner,
		halt:   halt,
		log:    logging.OrNull(opts.Logger),
	}
}

// NewCaller binds p to the layer. ctx is the context blocking calls made
// through the Caller observe.
func (l *Layer) NewCaller(ctx context.Context, p *process.Process) *Caller {
	return &Caller{ctx: ctx, layer: l, proc: p}
}

// Dispatch performs req on behalf of p. The result is non-negative on
// success and a negative Errno on failure.
func (l *Layer) Dispatch(ctx context.Context, p *process.Process, req Request) int {
	if req == nil {
		l.log.Verbose("process %d: nil request", p.PID)
		return int(ENOSYS)
	}

	result, err := l.dispatch(ctx, p, req)
	if err != nil {
		errno := ErrnoOf(err)
		l.log.Verbose("process %d: %s failed: %v (%d)", p.PID, req.Number(), err, errno)
		return int(errno)
	}
	l.log.Verbose("process %d: %s = %d", p.PID, req.Number(), result)
	return result
}

func (l *Layer) dispatch(ctx context.Context, p *process.Process, req Request) (int, error) {
	if p.IsTerminated() {
		return 0, process.ErrInvalidTransition
	}

	switch r := req.(type) {
	case Halt:
		return l.doHalt(p)
	case Exit:
		return 0, l.procs.Exit(p, r.Status, true)
	case Exec:
		return l.doExec(ctx, p, r)
	case Join:
		return l.doJoin(ctx, p, r)
	case Create:
		return l.doCreate(p, r.Name)
	case Open:
		return l.doOpen(p, r.Name)
	case Read:
		if r.Len < 0 || r.Len > len(r.Buf) {
			return 0, ErrBadArgs
		}
		return p.Files.Read(r.FD, r.Buf[:r.Len])
	case Write:
		if r.Len < 0 || r.Len > len(r.Buf) {
			return 0, ErrBadArgs
		}
		return p.Files.Write(r.FD, r.Buf[:r.Len])
	case Close:
		return 0, p.Files.Close(r.FD)
	case Unlink:
		return 0, l.store.Unlink(r.Name)
	default:
		return 0, ENOSYS
	}
}

func (l *Layer) doHalt(p *process.Process) (int, error) {
	if !p.IsRoot() {
		return 0, ErrNotPermitted
	}
	l.log.Info("process %d: halting", p.PID)
	l.halt()
	return 0, nil
}

func (l *Layer) doCreate(p *process.Process, name string) (int, error) {
	if err := filestore.ValidateName(name, l.store.MaxNameLength()); err != nil {
		return 0, err
	}
	if p.Files.Full() {
		return 0, fdtable.ErrTableFull
	}

	f, err := l.store.Create(name)
	if err != nil {
		return 0, err
	}
	fd, err := p.Files.Allocate(f)
	if err != nil {
		// Undo the create so the name is free again.
		_ = l.store.Unlink(name)
		_ = f.Release()
		return 0, err
	}
	return fd, nil
}

func (l *Layer) doOpen(p *process.Process, name string) (int, error) {
	f, err := l.store.Open(name)
	if err != nil {
		return 0, err
	}
	fd, err := p.Files.Allocate(f)
	if err != nil {
		_ = f.Release()
		return 0, err
	}
	return fd, nil
}

func (l *Layer) doExec(ctx context.Context, p *process.Process, r Exec) (int, error) {
	args, err := argVector(r.Argc, r.Argv)
	if err != nil {
		return 0, err
	}
	child, err := l.Launch(ctx, p, r.Path, args)
	if err != nil {
		return 0, err
	}
	return child.PID, nil
}

func (l *Layer) doJoin(ctx context.Context, p *process.Process, r Join) (int, error) {
	res, err := l.procs.Join(ctx, p, r.PID)
	if err != nil {
		return 0, err
	}
	if r.Status != nil {
		*r.Status = res.Status
	}
	if res.Normal {
		return 1, nil
	}
	return 0, nil
}

// Launch validates path and args, creates a child of parent and starts
// the image in it. A nil parent creates a root process. On error no
// process exists afterwards.
func (l *Layer) Launch(ctx context.Context, parent *process.Process, path string, args []string) (*process.Process, error) {
	if path == "" {
		return nil, filestore.ErrInvalidName
	}
	if err := l.procs.Limits().CheckArgs(args); err != nil {
		return nil, err
	}
	prog, err := l.loader.Lookup(path)
	if err != nil {
		return nil, err
	}

	child, err := l.procs.Spawn(parent, &process.CreateConfig{Command: path, Args: args})
	if err != nil {
		return nil, err
	}
	if err := l.runner.Start(l.NewCaller(ctx, child), prog); err != nil {
		l.procs.Abort(child)
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	return child, nil
}

// argVector copies the first argc entries of argv.
func argVector(argc int, argv []*string) ([]string, error) {
	if argc < 0 || argc > len(argv) {
		return nil, fmt.Errorf("%w: argc %d with %d entries", ErrBadArgs, argc, len(argv))
	}
	args := make([]string, argc)
	for i := 0; i < argc; i++ {
		if argv[i] == nil {
			return nil, fmt.Errorf("%w: argv[%d] is nil", ErrBadArgs, i)
		}
		args[i] = *argv[i]
	}
	return args, nil
}
