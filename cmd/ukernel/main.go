// ukernel runs program images on a simulated teaching kernel.
//
// Usage:
//
//	ukernel run IMAGE [ARGS...]   boot IMAGE as the root process
//	ukernel images                list the built-in images
//	ukernel shell                 drive a root process interactively
//
// The exit code of run is the exit status of the root process.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
)

// Exit codes not produced by a program.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitUsage     = 2
	ExitPanic     = 3
	ExitInterrupt = 130
)

// exitStatus carries a process exit status out of a command.
type exitStatus struct {
	code int
}

func (e *exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCodeForError(err error) int {
	var es *exitStatus
	if errors.As(err, &es) {
		return es.code & 0xff
	}
	return ExitError
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(ExitPanic)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		var es *exitStatus
		if !errors.As(err, &es) {
			fmt.Fprintf(os.Stderr, "ukernel: %s\n", err)
		}
		os.Exit(exitCodeForError(err))
	}
}
