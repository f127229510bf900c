package syscalls

// Request is one system call with its arguments. The set of requests is
// closed: only the types in this file implement it.
type Request interface {
	Number() Number
	isRequest()
}

// Halt stops the kernel.
type Halt struct{}

// Exit terminates the calling process with Status.
type Exit struct {
	Status int
}

// Exec starts the image at Path with the first Argc entries of Argv as its
// arguments. A nil entry before Argc is malformed.
type Exec struct {
	Path string
	Argc int
	Argv []*string
}

// Join waits for child PID. The exit status is stored through Status
// unless it is nil.
type Join struct {
	PID    int
	Status *int
}

// Create creates Name exclusively and opens it.
type Create struct {
	Name string
}

// Open opens the existing file Name.
type Open struct {
	Name string
}

// Read reads up to Len bytes from FD into Buf.
type Read struct {
	FD  int
	Buf []byte
	Len int
}

// Write writes the first Len bytes of Buf to FD.
type Write struct {
	FD  int
	Buf []byte
	Len int
}

// Close closes FD.
type Close struct {
	FD int
}

// Unlink removes Name from the file store.
type Unlink struct {
	Name string
}

func (Halt) Number() Number   { return SysHalt }
func (Exit) Number() Number   { return SysExit }
func (Exec) Number() Number   { return SysExec }
func (Join) Number() Number   { return SysJoin }
func (Create) Number() Number { return SysCreate }
func (Open) Number() Number   { return SysOpen }
func (Read) Number() Number   { return SysRead }
func (Write) Number() Number  { return SysWrite }
func (Close) Number() Number  { return SysClose }
func (Unlink) Number() Number { return SysUnlink }

func (Halt) isRequest()   {}
func (Exit) isRequest()   {}
func (Exec) isRequest()   {}
func (Join) isRequest()   {}
func (Create) isRequest() {}
func (Open) isRequest()   {}
func (Read) isRequest()   {}
func (Write) isRequest()  {}
func (Close) isRequest()  {}
func (Unlink) isRequest() {}
