// Package kernel assembles a kernel instance: a file store, a process
// manager, the system call layer and the engine running program images.
//
// A kernel runs until its last process exits or a root process halts it.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"ukernel/pkg/config"
	"ukernel/pkg/engine"
	"ukernel/pkg/fdtable"
	"ukernel/pkg/filestore"
	"ukernel/pkg/logging"
	"ukernel/pkg/process"
	"ukernel/pkg/syscalls"
)

// ErrHalted is returned by Boot and Attach once the kernel has halted.
var ErrHalted = errors.New("kernel: halted")

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(k *Kernel) {
		k.log = l
	}
}

// WithConsole sets the standard streams of every process. The default is
// the host's stdin and stdout.
func WithConsole(c *fdtable.Console) Option {
	return func(k *Kernel) {
		k.console = c
	}
}

// WithRegistry sets the program images the kernel can exec. The default
// registry is empty.
func WithRegistry(r *engine.Registry) Option {
	return func(k *Kernel) {
		k.registry = r
	}
}

// Kernel is one running kernel instance.
type Kernel struct {
	id       uuid.UUID
	cfg      config.Config
	log      logging.Logger
	console  *fdtable.Console
	registry *engine.Registry

	store  *filestore.Store
	procs  *process.Manager
	engine *engine.Engine
	layer  *syscalls.Layer

	ctx      context.Context
	cancel   context.CancelFunc
	haltOnce sync.Once
}

// New creates a kernel from cfg and installs cfg.Files in its store.
func New(cfg *config.Config, opts ...Option) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		id:  uuid.New(),
		cfg: *cfg,
	}
	for _, opt := range opts {
		opt(k)
	}

	k.log = logging.OrNull(k.log)
	if cl, ok := k.log.(*logging.ConsoleLogger); ok {
		k.log = cl.WithPrefix(fmt.Sprintf("kernel %s: ", k.id.String()[:8]))
	}
	if k.console == nil {
		k.console = fdtable.NewConsole(os.Stdin, os.Stdout)
	}
	if k.registry == nil {
		k.registry = engine.NewRegistry(cfg.ImageSuffix)
	}

	k.ctx, k.cancel = context.WithCancel(context.Background())
	k.store = filestore.New(filestore.Options{MaxNameLength: cfg.MaxNameLength})
	k.procs = process.NewManager(process.ManagerOptions{
		Limits: process.Limits{
			MaxProcesses: cfg.MaxProcesses,
			MaxOpenFiles: cfg.MaxOpenFiles,
			MaxArgBytes:  cfg.MaxArgBytes,
		},
		Console: k.console,
		Logger:  k.log,
	})
	k.engine = engine.New(k.procs, k.log)
	k.layer = syscalls.New(syscalls.Options{
		Store:     k.store,
		Processes: k.procs,
		Loader:    k.registry,
		Runner:    k.engine,
		Halt:      k.Halt,
		Logger:    k.log,
	})

	names := make([]string, 0, len(cfg.Files))
	for name := range cfg.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := k.store.Seed(name, []byte(cfg.Files[name])); err != nil {
			return nil, fmt.Errorf("seed %s: %w", name, err)
		}
	}

	k.log.Verbose("booted with %d preloaded files, %d images", len(names), len(k.registry.Names()))
	return k, nil
}

// ID returns the boot identifier of the kernel.
func (k *Kernel) ID() uuid.UUID { return k.id }

// Config returns the configuration the kernel was created with.
func (k *Kernel) Config() config.Config { return k.cfg }

// Store returns the file store.
func (k *Kernel) Store() *filestore.Store { return k.store }

// Processes returns the process manager.
func (k *Kernel) Processes() *process.Manager { return k.procs }

// Registry returns the program images the kernel can exec.
func (k *Kernel) Registry() *engine.Registry { return k.registry }

// Boot starts image as a root process.
func (k *Kernel) Boot(image string, args ...string) (*process.Process, error) {
	if k.Halted() {
		return nil, ErrHalted
	}
	p, err := k.layer.Launch(k.ctx, nil, image, args)
	if err != nil {
		return nil, fmt.Errorf("boot %s: %w", image, err)
	}
	k.log.Info("process %d: started %s", p.PID, image)
	return p, nil
}

// Attach creates a root process driven by the returned Caller instead of
// a program image. The caller ends it with Detach.
func (k *Kernel) Attach(name string) (*syscalls.Caller, error) {
	if k.Halted() {
		return nil, ErrHalted
	}
	p, err := k.procs.CreateProcess(&process.CreateConfig{Command: name})
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", name, err)
	}
	return k.layer.NewCaller(k.ctx, p), nil
}

// Detach exits a process created by Attach.
func (k *Kernel) Detach(c *syscalls.Caller, status int) error {
	if r := c.Dispatch(syscalls.Exit{Status: status}); r < 0 {
		return syscalls.Errno(r)
	}
	return nil
}

// Halt stops the kernel. Blocked joins return EINTR, no new program
// starts and Wait returns.
func (k *Kernel) Halt() {
	k.haltOnce.Do(func() {
		k.log.Info("halting")
		k.engine.Stop()
		k.cancel()
	})
}

// Halted reports whether Halt has been called.
func (k *Kernel) Halted() bool {
	return k.ctx.Err() != nil
}

// Wait blocks until every process has exited or the kernel halts. When
// all processes exited it also waits for their goroutines to finish.
func (k *Kernel) Wait(ctx context.Context) error {
	select {
	case <-k.procs.Done():
		k.engine.Wait()
		return nil
	case <-k.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown halts the kernel and waits for running programs to finish or
// ctx to expire.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.Halt()

	done := make(chan struct{})
	go func() {
		k.engine.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
