package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateName tests name validation.
func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxLen  int
		wantErr bool
	}{
		{"simple", "testfile.txt", 0, false},
		{"empty", "", 0, true},
		{"nul byte", "a\x00b", 0, true},
		{"slash", "dir/file", 0, true},
		{"dot", ".", 0, true},
		{"dot dot", "..", 0, true},
		{"leading dots", "..a", 0, false},
		{"at limit", strings.Repeat("a", 8), 8, false},
		{"too long", strings.Repeat("a", 9), 8, true},
		{"default limit", strings.Repeat("a", DefaultMaxNameLength+1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, tt.maxLen)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestCreateExclusive tests that a second create of a live name fails.
func TestCreateExclusive(t *testing.T) {
	s := New(Options{})

	f, err := s.Create("testfile.txt")
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = s.Create("testfile.txt")
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Create("")
	assert.ErrorIs(t, err, ErrInvalidName)

	info, err := s.Stat("testfile.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Refs, "failed create must not touch the refcount")
}

// TestOpen tests opening existing and missing files.
func TestOpen(t *testing.T) {
	s := New(Options{})

	_, err := s.Open("nonexistent.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Open("")
	assert.ErrorIs(t, err, ErrInvalidName)

	created, err := s.Create("testfile.txt")
	require.NoError(t, err)

	opened, err := s.Open("testfile.txt")
	require.NoError(t, err)
	assert.Same(t, created, opened)

	info, _ := s.Stat("testfile.txt")
	assert.Equal(t, 2, info.Refs)
}

// TestReadWrite tests content access through references.
func TestReadWrite(t *testing.T) {
	s := New(Options{})
	f, err := s.Create("data")
	require.NoError(t, err)

	assert.Equal(t, 5, f.WriteAt([]byte("hello"), 0))
	assert.Equal(t, 6, f.WriteAt([]byte(" world"), 5))
	assert.Equal(t, int64(11), f.Size())

	buf := make([]byte, 4)
	assert.Equal(t, 4, f.ReadAt(buf, 0))
	assert.Equal(t, "hell", string(buf))
	assert.Equal(t, 1, f.ReadAt(buf, 10))
	assert.Equal(t, 0, f.ReadAt(buf, 11), "read at end of content returns 0")

	// Overwrite in the middle, then extend past the end with a gap.
	f.WriteAt([]byte("J"), 6)
	f.WriteAt([]byte("!"), 13)
	got, err := s.ReadFile("data")
	require.NoError(t, err)
	assert.Equal(t, "hello Jorld\x00\x00!", string(got))
}

// TestUnlinkDeferred tests that unlink hides the name while open references
// keep working, and that content is discarded on the last release.
func TestUnlinkDeferred(t *testing.T) {
	s := New(Options{})

	f, err := s.Create("test_unlink.txt")
	require.NoError(t, err)
	f.WriteAt([]byte("This file will be deleted"), 0)

	require.NoError(t, s.Unlink("test_unlink.txt"))

	_, err = s.Open("test_unlink.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, f.Unlinked())
	assert.Equal(t, Stats{Files: 0, Pending: 1, Refs: 1}, s.Stats())

	buf := make([]byte, 64)
	n := f.ReadAt(buf, 0)
	assert.Equal(t, "This file will be deleted", string(buf[:n]))

	// The name is free again and refers to a brand new file.
	g, err := s.Create("test_unlink.txt")
	require.NoError(t, err)
	assert.NotSame(t, f, g)
	assert.Equal(t, int64(0), g.Size())

	require.NoError(t, f.Release())
	assert.Equal(t, Stats{Files: 1, Pending: 0, Refs: 1}, s.Stats())
	assert.Equal(t, int64(0), f.Size(), "content discarded after last release")

	assert.ErrorIs(t, s.Unlink("nonexistent.txt"), ErrNotFound)
}

// TestUnlinkUnreferenced tests immediate deletion of a closed file.
func TestUnlinkUnreferenced(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Seed("gone", []byte("bye")))

	require.NoError(t, s.Unlink("gone"))
	assert.Equal(t, Stats{}, s.Stats())
	assert.ErrorIs(t, s.Unlink("gone"), ErrNotFound)
}

// TestReleaseTwice tests that over-releasing is reported without side effects.
func TestReleaseTwice(t *testing.T) {
	s := New(Options{})
	f, err := s.Create("x")
	require.NoError(t, err)

	require.NoError(t, f.Release())
	assert.ErrorIs(t, f.Release(), ErrReleased)

	info, err := s.Stat("x")
	require.NoError(t, err)
	assert.Equal(t, 0, info.Refs)
}

// TestList tests listing in name order.
func TestList(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Seed("b", []byte("bb")))
	require.NoError(t, s.Seed("a", []byte("a")))
	require.NoError(t, s.Seed("c", nil))
	require.NoError(t, s.Unlink("c"))

	want := []Info{
		{Name: "a", Size: 1},
		{Name: "b", Size: 2},
	}
	if diff := cmp.Diff(want, s.List(), cmpopts.IgnoreFields(Info{}, "ModTime")); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

// TestExport tests dumping live files to a directory.
func TestExport(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Seed("file_0", []byte("AAAA")))
	require.NoError(t, s.Seed("file_1", []byte("BBBB")))
	require.NoError(t, s.Seed("hidden", []byte("x")))
	require.NoError(t, s.Unlink("hidden"))

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, s.Export(dir))

	got, err := os.ReadFile(filepath.Join(dir, "file_1"))
	require.NoError(t, err)
	assert.Equal(t, "BBBB", string(got))

	_, err = os.Stat(filepath.Join(dir, "hidden"))
	assert.True(t, os.IsNotExist(err))

	for _, name := range []string{".", ".."} {
		assert.ErrorIs(t, s.Seed(name, []byte("x")), ErrInvalidName, "seed %q", name)
	}
	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "nothing is written outside the export directory")
}

// TestConcurrentRefs tests refcount consistency under concurrent open/release.
func TestConcurrentRefs(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Seed("shared", nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := s.Open("shared")
			if err != nil {
				t.Error(err)
				return
			}
			f.WriteAt([]byte{byte(i)}, int64(i))
			if err := f.Release(); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	info, err := s.Stat("shared")
	require.NoError(t, err)
	assert.Equal(t, 0, info.Refs)
	assert.Equal(t, int64(50), info.Size)
}
