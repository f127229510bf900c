package syscalls

// Number identifies a system call.
type Number int

// System call numbers.
const (
	// SysHalt stops the kernel. Only a root process may halt.
	SysHalt Number = iota
	// SysExit terminates the calling process.
	SysExit
	// SysExec starts a program image as a child of the caller.
	SysExec
	// SysJoin waits for a child to exit.
	SysJoin
	// SysCreate creates a file and opens it.
	SysCreate
	// SysOpen opens an existing file.
	SysOpen
	// SysRead reads from a descriptor.
	SysRead
	// SysWrite writes to a descriptor.
	SysWrite
	// SysClose closes a descriptor.
	SysClose
	// SysUnlink removes a file name.
	SysUnlink
)

// String returns the string representation of the system call number.
func (n Number) String() string {
	switch n {
	case SysHalt:
		return "halt"
	case SysExit:
		return "exit"
	case SysExec:
		return "exec"
	case SysJoin:
		return "join"
	case SysCreate:
		return "create"
	case SysOpen:
		return "open"
	case SysRead:
		return "read"
	case SysWrite:
		return "write"
	case SysClose:
		return "close"
	case SysUnlink:
		return "unlink"
	default:
		return "unknown"
	}
}

// IsValid checks if the number names a system call.
func (n Number) IsValid() bool {
	return n >= SysHalt && n <= SysUnlink
}
