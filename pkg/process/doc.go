/*
Package process tracks process identity and lifecycle for the kernel.

A Manager owns the process table. Every process has a unique PID, an
optional parent, its own file descriptor table and a state that moves once
from Running to Exited.

# Lifecycle

	Running --Exit(status)--> Exited

Exit closes every descriptor of the process, records the status and wakes
any parent blocked in Join. A parent may join each child exactly once; the
join blocks until the child has exited and then reaps it from the table.
Children whose parent has already exited are reaped as soon as they exit,
since nobody can join them.

# Usage

	pm := process.NewManager(process.ManagerOptions{Console: console})

	root, err := pm.CreateProcess(&process.CreateConfig{Command: "sh.coff"})
	if err != nil {
		// handle error
	}

	child, err := pm.Spawn(root, &process.CreateConfig{Command: "halt.coff"})
	if err != nil {
		// handle error
	}

	// in the child's goroutine
	pm.Exit(child, 0, true)

	// in the parent's goroutine
	res, err := pm.Join(ctx, root, child.PID)

# Limits

Limits bounds the number of live processes, the size of each descriptor
table and the encoded size of exec arguments. Violations are reported as
*LimitError values that match ErrLimitExceeded.
*/
package process
