package process

import (
	"errors"
	"fmt"
)

// ErrLimitExceeded matches every *LimitError.
var ErrLimitExceeded = errors.New("process: resource limit exceeded")

// ResourceType represents the type of resource being limited.
type ResourceType string

const (
	// ResourceProcesses represents live processes.
	ResourceProcesses ResourceType = "processes"
	// ResourceArgs represents the encoded exec argument vector.
	ResourceArgs ResourceType = "args"
)

// PointerSize is the width of one argv pointer in the encoded vector.
const PointerSize = 4

// Limits defines the resource limits enforced by a Manager.
type Limits struct {
	// MaxProcesses is the maximum number of live processes. Zero means
	// unlimited.
	MaxProcesses int
	// MaxOpenFiles is the size of each descriptor table, standard streams
	// included.
	MaxOpenFiles int
	// MaxArgBytes is the maximum encoded size of an argument vector: one
	// pointer plus the NUL terminated string per argument. Zero means
	// unlimited.
	MaxArgBytes int
}

// DefaultLimits returns the limits of the reference kernel.
func DefaultLimits() Limits {
	return Limits{
		MaxProcesses: 0,
		MaxOpenFiles: 16,
		MaxArgBytes:  1024,
	}
}

// LimitError represents a resource limit violation.
type LimitError struct {
	Type    ResourceType
	Limit   int64
	Used    int64
	Message string
}

// Error returns the error message.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s (%d/%d)", e.Message, e.Used, e.Limit)
}

// Is reports whether target is ErrLimitExceeded.
func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// IsLimitError checks if an error is a limit error.
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// ArgBytes returns the encoded size of args.
func ArgBytes(args []string) int {
	n := 0
	for _, a := range args {
		n += PointerSize + len(a) + 1
	}
	return n
}

// CheckArgs checks the encoded size of an argument vector.
func (l Limits) CheckArgs(args []string) error {
	used := ArgBytes(args)
	if l.MaxArgBytes > 0 && used > l.MaxArgBytes {
		return &LimitError{
			Type:    ResourceArgs,
			Limit:   int64(l.MaxArgBytes),
			Used:    int64(used),
			Message: "argument vector too large",
		}
	}
	return nil
}

// CheckProcesses checks whether one more process may be created while
// live processes exist.
func (l Limits) CheckProcesses(live int) error {
	if l.MaxProcesses > 0 && live >= l.MaxProcesses {
		return &LimitError{
			Type:    ResourceProcesses,
			Limit:   int64(l.MaxProcesses),
			Used:    int64(live),
			Message: "process limit exceeded",
		}
	}
	return nil
}
