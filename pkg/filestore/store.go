package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// Store errors.
var (
	ErrInvalidName = errors.New("filestore: invalid name")
	ErrExists      = errors.New("filestore: file already exists")
	ErrNotFound    = errors.New("filestore: file not found")
	ErrReleased    = errors.New("filestore: reference already released")
)

// Options configures a Store.
type Options struct {
	// MaxNameLength bounds file names. Zero means DefaultMaxNameLength.
	MaxNameLength int
}

// Info is a point-in-time description of a file.
type Info struct {
	Name     string
	Size     int64
	Refs     int
	Unlinked bool
	ModTime  time.Time
}

// Stats summarizes a Store.
type Stats struct {
	// Files is the number of named files.
	Files int
	// Pending is the number of unlinked files still held open.
	Pending int
	// Refs is the number of live references across all files.
	Refs int
}

// Store is the directory of named files. The zero value is not usable;
// create one with New.
type Store struct {
	mu      sync.Mutex
	files   map[string]*File
	pending map[*File]struct{}
	maxName int
}

// New creates an empty Store.
func New(opts Options) *Store {
	maxName := opts.MaxNameLength
	if maxName <= 0 {
		maxName = DefaultMaxNameLength
	}
	return &Store{
		files:   make(map[string]*File),
		pending: make(map[*File]struct{}),
		maxName: maxName,
	}
}

// MaxNameLength returns the longest accepted file name.
func (s *Store) MaxNameLength() int {
	return s.maxName
}

// Create makes a new empty file and returns the first reference to it.
// Creation is exclusive: a live file with the same name yields ErrExists.
func (s *Store) Create(name string) (*File, error) {
	if err := ValidateName(name, s.maxName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[name]; ok {
		return nil, ErrExists
	}

	f := newFile(s, name)
	f.refs = 1
	s.files[name] = f
	return f, nil
}

// Open returns a new reference to the live file called name.
func (s *Store) Open(name string) (*File, error) {
	if err := ValidateName(name, s.maxName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	f.refs++
	return f, nil
}

// Unlink removes name from the directory. If the file is still referenced
// its content survives until the last reference is released; otherwise it
// is discarded immediately.
func (s *Store) Unlink(name string) error {
	if err := ValidateName(name, s.maxName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		return ErrNotFound
	}

	delete(s.files, name)
	f.unlinked = true
	if f.refs == 0 {
		f.data = nil
	} else {
		s.pending[f] = struct{}{}
	}
	return nil
}

// Seed installs a file with the given content without keeping a reference.
func (s *Store) Seed(name string, data []byte) error {
	f, err := s.Create(name)
	if err != nil {
		return err
	}
	f.WriteAt(data, 0)
	return f.Release()
}

// Stat describes the live file called name.
func (s *Store) Stat(name string) (Info, error) {
	if err := ValidateName(name, s.maxName); err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		return Info{}, ErrNotFound
	}
	return f.info(), nil
}

// List describes every live file, sorted by name.
func (s *Store) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]Info, 0, len(s.files))
	for _, f := range s.files {
		infos = append(infos, f.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Stats returns counters for the whole store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Files: len(s.files), Pending: len(s.pending)}
	for _, f := range s.files {
		st.Refs += f.refs
	}
	for f := range s.pending {
		st.Refs += f.refs
	}
	return st
}

// ReadFile returns a copy of the content of the live file called name.
func (s *Store) ReadFile(name string) ([]byte, error) {
	if err := ValidateName(name, s.maxName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), f.data...), nil
}

// Export writes every live file into dir, which is created if needed. Each
// file is written to a temporary file and renamed into place.
func (s *Store) Export(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: export: %w", err)
	}

	s.mu.Lock()
	snapshot := make(map[string][]byte, len(s.files))
	for name, f := range s.files {
		snapshot[name] = append([]byte(nil), f.data...)
	}
	s.mu.Unlock()

	for name, data := range snapshot {
		path := filepath.Join(dir, name)
		if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("filestore: export %s: %w", name, err)
		}
	}
	return nil
}

// release drops one reference to f. Called with s.mu held.
func (s *Store) release(f *File) error {
	if f.refs <= 0 {
		return ErrReleased
	}
	f.refs--
	if f.refs == 0 && f.unlinked {
		f.data = nil
		delete(s.pending, f)
	}
	return nil
}
