// Package fdtable implements the per-process file descriptor table.
//
// Handles 0 and 1 are bound to the console's input and output when the
// table is created. Every other handle names a Session: a reference to a
// filestore.File plus a private cursor. New sessions always receive the
// smallest free handle greater than or equal to 2.
package fdtable

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"ukernel/pkg/filestore"
)

// Reserved handles.
const (
	Stdin  = 0
	Stdout = 1

	// FirstFile is the lowest handle ever given to a file session.
	FirstFile = 2
)

// DefaultMaxOpen is the reference table size, standard streams included.
const DefaultMaxOpen = 16

// Table errors.
var (
	ErrBadDescriptor = errors.New("fdtable: bad file descriptor")
	ErrTableFull     = errors.New("fdtable: too many open files")
	ErrIO            = errors.New("fdtable: console i/o error")
)

// Session is one open instance of a file with its own cursor.
type Session struct {
	file   *filestore.File
	offset int64
}

// File returns the file the session refers to.
func (s *Session) File() *filestore.File {
	return s.file
}

// Offset returns the cursor position.
func (s *Session) Offset() int64 {
	return s.offset
}

// Table maps handles to sessions for one process.
type Table struct {
	mu       sync.Mutex
	console  *Console
	stdin    bool
	stdout   bool
	sessions map[int]*Session
	maxOpen  int
}

// New creates a table with the standard streams bound to console. maxOpen
// bounds the number of bound handles, the standard streams included; zero
// means DefaultMaxOpen.
func New(console *Console, maxOpen int) *Table {
	if console == nil {
		console = NewConsole(nil, nil)
	}
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpen
	}
	return &Table{
		console:  console,
		stdin:    true,
		stdout:   true,
		sessions: make(map[int]*Session),
		maxOpen:  maxOpen,
	}
}

// Allocate binds a new session for f to the smallest free handle >= 2.
// On ErrTableFull the reference is left with the caller.
func (t *Table) Allocate(f *filestore.File) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.boundLocked() >= t.maxOpen {
		return -1, ErrTableFull
	}

	fd := FirstFile
	for {
		if _, used := t.sessions[fd]; !used {
			break
		}
		fd++
	}
	t.sessions[fd] = &Session{file: f}
	return fd, nil
}

// Lookup returns the session bound to fd. The standard streams have no
// session and yield ErrBadDescriptor.
func (t *Table) Lookup(fd int) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookupLocked(fd)
}

func (t *Table) lookupLocked(fd int) (*Session, error) {
	s, ok := t.sessions[fd]
	if !ok {
		return nil, ErrBadDescriptor
	}
	return s, nil
}

// Read reads up to len(p) bytes from fd and advances its cursor by the
// number of bytes returned. Zero bytes at end of file is not an error.
func (t *Table) Read(fd int, p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case fd < 0:
		return 0, ErrBadDescriptor
	case fd == Stdin:
		if !t.stdin {
			return 0, ErrBadDescriptor
		}
		// The console read may block; other table calls must not wait on it.
		t.mu.Unlock()
		n, err := t.console.Read(p)
		t.mu.Lock()
		if err != nil {
			return n, fmt.Errorf("%w: %w", ErrIO, err)
		}
		return n, nil
	}

	s, err := t.lookupLocked(fd)
	if err != nil {
		return 0, err
	}
	n := s.file.ReadAt(p, s.offset)
	s.offset += int64(n)
	return n, nil
}

// Write writes all of p to fd at its cursor and advances the cursor.
func (t *Table) Write(fd int, p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case fd < 0:
		return 0, ErrBadDescriptor
	case fd == Stdout:
		if !t.stdout {
			return 0, ErrBadDescriptor
		}
		n, err := t.console.Write(p)
		if err != nil {
			return n, fmt.Errorf("%w: %w", ErrIO, err)
		}
		return n, nil
	}

	s, err := t.lookupLocked(fd)
	if err != nil {
		return 0, err
	}
	n := s.file.WriteAt(p, s.offset)
	s.offset += int64(n)
	return n, nil
}

// Close unbinds fd and releases its file reference. Closing a standard
// stream unbinds it for good: reserved handles are never reallocated.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(fd)
}

func (t *Table) closeLocked(fd int) error {
	switch {
	case fd < 0:
		return ErrBadDescriptor
	case fd == Stdin:
		if !t.stdin {
			return ErrBadDescriptor
		}
		t.stdin = false
		return nil
	case fd == Stdout:
		if !t.stdout {
			return ErrBadDescriptor
		}
		t.stdout = false
		return nil
	}

	s, err := t.lookupLocked(fd)
	if err != nil {
		return err
	}
	delete(t.sessions, fd)
	return s.file.Release()
}

// CloseAll closes every bound handle and returns how many were closed.
func (t *Table) CloseAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	closed := 0
	for _, fd := range t.handlesLocked() {
		if t.closeLocked(fd) == nil {
			closed++
		}
	}
	return closed
}

// Handles returns the bound handles in ascending order.
func (t *Table) Handles() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlesLocked()
}

func (t *Table) handlesLocked() []int {
	fds := make([]int, 0, t.boundLocked())
	if t.stdin {
		fds = append(fds, Stdin)
	}
	if t.stdout {
		fds = append(fds, Stdout)
	}
	files := make([]int, 0, len(t.sessions))
	for fd := range t.sessions {
		files = append(files, fd)
	}
	sort.Ints(files)
	return append(fds, files...)
}

// Len returns the number of bound handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boundLocked()
}

func (t *Table) boundLocked() int {
	n := len(t.sessions)
	if t.stdin {
		n++
	}
	if t.stdout {
		n++
	}
	return n
}

// Full reports whether Allocate would fail with ErrTableFull.
func (t *Table) Full() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boundLocked() >= t.maxOpen
}
