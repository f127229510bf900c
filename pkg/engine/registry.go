// Package engine runs program images for the kernel.
//
// A Registry maps image names to Go functions and resolves exec paths. An
// Engine runs every started image on its own goroutine and reports its
// termination to the process manager.
package engine

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"ukernel/pkg/syscalls"
)

// DefaultSuffix is the extension every image name carries.
const DefaultSuffix = ".coff"

// Registry errors.
var (
	ErrDuplicateImage = errors.New("engine: image already registered")
	ErrInvalidImage   = errors.New("engine: invalid image")
)

// Registry is a set of named program images.
type Registry struct {
	mu       sync.RWMutex
	suffix   string
	programs map[string]syscalls.Program
}

// NewRegistry creates an empty registry. Every image name must end in
// suffix; an empty suffix accepts any name.
func NewRegistry(suffix string) *Registry {
	return &Registry{
		suffix:   suffix,
		programs: make(map[string]syscalls.Program),
	}
}

// Suffix returns the required image name extension.
func (r *Registry) Suffix() string {
	return r.suffix
}

// Register adds prog under name + suffix.
func (r *Registry) Register(name string, prog syscalls.Program) error {
	if name == "" || prog == nil || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidImage, name)
	}
	full := name + r.suffix

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.programs[full]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateImage, full)
	}
	r.programs[full] = prog
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, prog syscalls.Program) {
	if err := r.Register(name, prog); err != nil {
		panic(err)
	}
}

// Lookup resolves an exec path. Paths may carry a directory, which is
// ignored: "test/halt.coff" names the image "halt.coff".
func (r *Registry) Lookup(p string) (syscalls.Program, error) {
	if r.suffix != "" && !strings.HasSuffix(p, r.suffix) {
		return nil, fmt.Errorf("%w: %s: missing %s suffix", syscalls.ErrNoImage, p, r.suffix)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if prog, ok := r.programs[p]; ok {
		return prog, nil
	}
	if prog, ok := r.programs[path.Base(p)]; ok {
		return prog, nil
	}
	return nil, fmt.Errorf("%w: %s", syscalls.ErrNoImage, p)
}

// Names returns the registered image names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
