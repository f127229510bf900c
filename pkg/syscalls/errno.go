package syscalls

import (
	"context"
	"errors"
	"strconv"

	"ukernel/pkg/fdtable"
	"ukernel/pkg/filestore"
	"ukernel/pkg/process"
)

// Errno is the negative result of a failed system call.
type Errno int

// Error numbers.
const (
	EINVALIDNAME Errno = -1
	EEXIST       Errno = -2
	ENOENT       Errno = -3
	EBADF        Errno = -4
	EBADARGS     Errno = -5
	EJOINED      Errno = -6
	EMFILE       Errno = -7
	EPERM        Errno = -8
	EAGAIN       Errno = -9
	EIO          Errno = -10
	EINTR        Errno = -11
	ENOSYS       Errno = -12
)

var errnoText = map[Errno]string{
	EINVALIDNAME: "invalid name",
	EEXIST:       "file exists",
	ENOENT:       "no such file or process",
	EBADF:        "bad file descriptor",
	EBADARGS:     "bad arguments",
	EJOINED:      "child already joined",
	EMFILE:       "too many open files",
	EPERM:        "operation not permitted",
	EAGAIN:       "resource temporarily unavailable",
	EIO:          "input/output error",
	EINTR:        "interrupted by halt",
	ENOSYS:       "unknown system call",
}

// Error returns the error message.
func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}

// Errors raised by the layer itself.
var (
	ErrBadArgs       = errors.New("syscalls: malformed arguments")
	ErrNoImage       = errors.New("syscalls: no such program image")
	ErrNotPermitted  = errors.New("syscalls: operation not permitted")
	ErrEngineStopped = errors.New("syscalls: execution engine stopped")
)

// ErrnoOf maps an error returned by the kernel packages to its Errno.
// Unrecognized errors map to EIO.
func ErrnoOf(err error) Errno {
	var errno Errno
	var limit *process.LimitError

	switch {
	case err == nil:
		return 0
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, filestore.ErrInvalidName):
		return EINVALIDNAME
	case errors.Is(err, filestore.ErrExists):
		return EEXIST
	case errors.Is(err, filestore.ErrNotFound),
		errors.Is(err, ErrNoImage),
		errors.Is(err, process.ErrNotChild):
		return ENOENT
	case errors.Is(err, filestore.ErrReleased),
		errors.Is(err, fdtable.ErrBadDescriptor):
		return EBADF
	case errors.Is(err, fdtable.ErrTableFull):
		return EMFILE
	case errors.Is(err, fdtable.ErrIO):
		return EIO
	case errors.Is(err, process.ErrAlreadyJoined):
		return EJOINED
	case errors.As(err, &limit):
		if limit.Type == process.ResourceArgs {
			return EBADARGS
		}
		return EAGAIN
	case errors.Is(err, ErrBadArgs),
		errors.Is(err, process.ErrInvalidCommand):
		return EBADARGS
	case errors.Is(err, ErrNotPermitted):
		return EPERM
	case errors.Is(err, ErrEngineStopped),
		errors.Is(err, process.ErrInvalidTransition):
		return EAGAIN
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return EINTR
	default:
		return EIO
	}
}
