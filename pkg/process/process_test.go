package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ukernel/pkg/filestore"
)

func newManager(t *testing.T, limits Limits) *Manager {
	t.Helper()
	return NewManager(ManagerOptions{Limits: limits})
}

func spawnRoot(t *testing.T, pm *Manager) *Process {
	t.Helper()
	p, err := pm.CreateProcess(&CreateConfig{Command: "root.coff"})
	require.NoError(t, err)
	return p
}

// TestProcessStateTransitions tests valid state transitions.
func TestProcessStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from ProcessState
		to   ProcessState
		want bool
	}{
		{"Running to Exited", StateRunning, StateExited, true},
		{"Exited to Running", StateExited, StateRunning, false},
		{"Exited to Exited", StateExited, StateExited, false},
		{"Running to Running", StateRunning, StateRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// TestSpawnAssignsMonotonicPIDs tests that PIDs start at 1 and are never reused.
func TestSpawnAssignsMonotonicPIDs(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	assert.Equal(t, 1, root.PID)
	assert.True(t, root.IsRoot())
	assert.Equal(t, NoParent, root.ParentPID)

	c1, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)
	require.NoError(t, pm.Exit(c1, 0, true))
	_, err = pm.Join(context.Background(), root, c1.PID)
	require.NoError(t, err)

	c2, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)
	assert.Equal(t, 3, c2.PID)
	assert.Equal(t, root.PID, c2.ParentPID)
	assert.Equal(t, []int{c2.PID}, pm.GetChildren(root))
}

// TestSpawnInvalidCommand tests that a spawn without a command allocates nothing.
func TestSpawnInvalidCommand(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	_, err := pm.CreateProcess(&CreateConfig{})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	_, err = pm.CreateProcess(nil)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	root := spawnRoot(t, pm)
	assert.Equal(t, 1, root.PID)
}

// TestFreshDescriptorTable tests that children do not inherit descriptors.
func TestFreshDescriptorTable(t *testing.T) {
	st := filestore.New(filestore.Options{})
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)

	f, err := st.Create("a")
	require.NoError(t, err)
	fd, err := root.Files.Allocate(f)
	require.NoError(t, err)
	assert.Equal(t, 2, fd)

	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, child.Files.Handles())
	assert.Equal(t, 3, root.FileCount())
}

// TestExitClosesDescriptors tests the implicit close performed by exit.
func TestExitClosesDescriptors(t *testing.T) {
	st := filestore.New(filestore.Options{})
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)

	f, err := st.Create("a")
	require.NoError(t, err)
	_, err = root.Files.Allocate(f)
	require.NoError(t, err)
	require.NoError(t, st.Unlink("a"))
	assert.Equal(t, 1, st.Stats().Pending)

	require.NoError(t, pm.Exit(root, 7, true))
	assert.Equal(t, 0, root.FileCount())
	assert.Equal(t, 0, st.Stats().Pending, "last reference released on exit")

	code, normal := root.ExitStatus()
	assert.Equal(t, 7, code)
	assert.True(t, normal)
	assert.Equal(t, StateExited, root.GetState())
	assert.False(t, root.FinishedAt().IsZero())

	assert.ErrorIs(t, pm.Exit(root, 0, true), ErrInvalidTransition)
}

// TestJoin tests joining a child that exits after the join starts.
func TestJoin(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	type result struct {
		res JoinResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := pm.Join(context.Background(), root, child.PID)
		ch <- result{res, err}
	}()

	select {
	case <-ch:
		t.Fatal("join returned before the child exited")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, pm.Exit(child, 42, true))

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		assert.Equal(t, JoinResult{PID: child.PID, Status: 42, Normal: true}, r.res)
	case <-time.After(time.Second):
		t.Fatal("join did not return")
	}

	_, err = pm.GetProcess(child.PID)
	assert.ErrorIs(t, err, ErrProcessNotFound, "joined child is reaped")
}

// TestJoinAlreadyExited tests joining a child that exited before the join.
func TestJoinAlreadyExited(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)
	require.NoError(t, pm.Exit(child, -1, false))

	res, err := pm.Join(context.Background(), root, child.PID)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Status)
	assert.False(t, res.Normal)
}

// TestJoinErrors tests the join error cases.
func TestJoinErrors(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	other := spawnRoot(t, pm)
	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)
	grandchild, err := pm.Spawn(child, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = pm.Join(ctx, other, child.PID)
	assert.ErrorIs(t, err, ErrNotChild)
	_, err = pm.Join(ctx, root, grandchild.PID)
	assert.ErrorIs(t, err, ErrNotChild, "grandchildren are not joinable")
	_, err = pm.Join(ctx, root, root.PID)
	assert.ErrorIs(t, err, ErrNotChild)
	_, err = pm.Join(ctx, root, 999)
	assert.ErrorIs(t, err, ErrNotChild)

	require.NoError(t, pm.Exit(child, 0, true))
	_, err = pm.Join(ctx, root, child.PID)
	require.NoError(t, err)
	_, err = pm.Join(ctx, root, child.PID)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

// TestJoinConcurrent tests that only one of two concurrent joins succeeds.
func TestJoinConcurrent(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := pm.Join(context.Background(), root, child.PID)
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pm.Exit(child, 0, true))

	var ok, joined int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyJoined):
			joined++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, joined)
}

// TestJoinCancelled tests that a cancelled join leaves the child joinable.
func TestJoinCancelled(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pm.Join(ctx, root, child.PID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, pm.Exit(child, 3, true))
	res, err := pm.Join(context.Background(), root, child.PID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Status)
}

// TestOrphanReaping tests that exited children of an exited parent are reaped.
func TestOrphanReaping(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	exited, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)
	running, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	require.NoError(t, pm.Exit(exited, 0, true))
	assert.Equal(t, 3, pm.CountProcesses(), "exited child waits for a join")

	require.NoError(t, pm.Exit(root, 0, true))
	assert.False(t, pm.IsProcessAlive(exited.PID))
	_, err = pm.GetProcess(exited.PID)
	assert.ErrorIs(t, err, ErrProcessNotFound)
	_, err = pm.GetProcess(root.PID)
	assert.ErrorIs(t, err, ErrProcessNotFound)

	assert.True(t, pm.IsProcessAlive(running.PID))
	require.NoError(t, pm.Exit(running, 0, true))
	assert.Equal(t, 0, pm.CountProcesses())
}

// TestManagerDone tests that Done closes with the last exit.
func TestManagerDone(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	require.NoError(t, pm.Exit(root, 0, true))
	select {
	case <-pm.Done():
		t.Fatal("done closed with a live process")
	default:
	}
	assert.Equal(t, 1, pm.LiveProcesses())

	require.NoError(t, pm.Exit(child, 0, true))
	select {
	case <-pm.Done():
	default:
		t.Fatal("done not closed after the last exit")
	}
}

// TestProcessLimit tests the live process limit.
func TestProcessLimit(t *testing.T) {
	pm := newManager(t, Limits{MaxProcesses: 2, MaxOpenFiles: 16})
	root := spawnRoot(t, pm)
	c1, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	_, err = pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.True(t, IsLimitError(err))
	assert.Equal(t, []int{c1.PID}, pm.GetChildren(root))

	require.NoError(t, pm.Exit(c1, 0, true))
	c2, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)
	assert.Equal(t, 3, c2.PID)
}

// TestAbort tests rolling back a process that never ran.
func TestAbort(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	root := spawnRoot(t, pm)
	child, err := pm.Spawn(root, &CreateConfig{Command: "child.coff"})
	require.NoError(t, err)

	pm.Abort(child)
	assert.Empty(t, pm.GetChildren(root))
	assert.Equal(t, 1, pm.CountProcesses())
	_, err = pm.Join(context.Background(), root, child.PID)
	assert.ErrorIs(t, err, ErrNotChild)
}

// TestArgBytes tests argument vector accounting.
func TestArgBytes(t *testing.T) {
	assert.Equal(t, 0, ArgBytes(nil))
	assert.Equal(t, 4+3+1+4+0+1, ArgBytes([]string{"abc", ""}))

	l := Limits{MaxArgBytes: 10}
	assert.NoError(t, l.CheckArgs([]string{"abcde"}))
	err := l.CheckArgs([]string{"abcdef"})
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, "argument vector too large (11/10)", err.Error())

	assert.NoError(t, Limits{}.CheckArgs([]string{string(make([]byte, 5000))}))
}

// TestGetProcess tests PID lookup errors.
func TestGetProcess(t *testing.T) {
	pm := newManager(t, DefaultLimits())
	_, err := pm.GetProcess(0)
	assert.ErrorIs(t, err, ErrInvalidPID)
	_, err = pm.GetProcess(5)
	assert.ErrorIs(t, err, ErrProcessNotFound)

	a := spawnRoot(t, pm)
	b := spawnRoot(t, pm)
	procs := pm.GetProcesses()
	require.Len(t, procs, 2)
	assert.Same(t, a, procs[0])
	assert.Same(t, b, procs[1])
}
