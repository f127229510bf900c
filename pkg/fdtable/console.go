package fdtable

import (
	"errors"
	"io"
	"sync"
)

// Console is the pair of standard streams shared by every process of a
// kernel. Output is serialized so concurrent writers never interleave
// within a single write.
type Console struct {
	inMu  sync.Mutex
	outMu sync.Mutex
	in    io.Reader
	out   io.Writer
}

// NewConsole creates a console reading from in and writing to out. A nil
// in behaves as an empty stream; a nil out discards output.
func NewConsole(in io.Reader, out io.Writer) *Console {
	if in == nil {
		in = eofReader{}
	}
	if out == nil {
		out = io.Discard
	}
	return &Console{in: in, out: out}
}

// Read reads from standard input. End of input is reported as 0 bytes.
func (c *Console) Read(p []byte) (int, error) {
	c.inMu.Lock()
	defer c.inMu.Unlock()

	n, err := c.in.Read(p)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Write writes p to standard output.
func (c *Console) Write(p []byte) (int, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.out.Write(p)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
