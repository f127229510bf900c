package filestore

import (
	"time"
)

// File is a file object in a Store. A *File returned by Store.Create or
// Store.Open counts as one reference and must be released exactly once.
type File struct {
	store    *Store
	name     string
	data     []byte
	refs     int
	unlinked bool
	mtime    time.Time
}

func newFile(s *Store, name string) *File {
	return &File{
		store: s,
		name:  name,
		mtime: time.Now(),
	}
}

// Name returns the name the file was created with.
func (f *File) Name() string {
	return f.name
}

// ReadAt copies content starting at off into p and returns the number of
// bytes copied. It returns 0 at or past the end of the content.
func (f *File) ReadAt(p []byte, off int64) int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	if off < 0 || off >= int64(len(f.data)) {
		return 0
	}
	return copy(p, f.data[off:])
}

// WriteAt writes p at off, growing the content as needed, and returns
// len(p). A gap between the old end and off is zero filled.
func (f *File) WriteAt(p []byte, off int64) int {
	if off < 0 {
		return 0
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	needed := off + int64(len(p))
	if needed > int64(len(f.data)) {
		if needed <= int64(cap(f.data)) {
			f.data = f.data[:needed]
		} else {
			grown := make([]byte, needed, needed+needed/2)
			copy(grown, f.data)
			f.data = grown
		}
	}

	copy(f.data[off:], p)
	f.mtime = time.Now()
	return len(p)
}

// Size returns the current content length.
func (f *File) Size() int64 {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return int64(len(f.data))
}

// Unlinked reports whether the file has been removed from the directory.
func (f *File) Unlinked() bool {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.unlinked
}

// Release drops this reference. The last release of an unlinked file
// discards its content.
func (f *File) Release() error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.release(f)
}

// info snapshots f. Called with the store lock held.
func (f *File) info() Info {
	return Info{
		Name:     f.name,
		Size:     int64(len(f.data)),
		Refs:     f.refs,
		Unlinked: f.unlinked,
		ModTime:  f.mtime,
	}
}
