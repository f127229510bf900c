package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ukernel/pkg/fdtable"
	"ukernel/pkg/kernel"
	"ukernel/pkg/syscalls"
)

// Shell drives an attached root process from the command line.
type Shell struct {
	Prompt      string
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	Interactive bool

	kernel   *kernel.Kernel
	caller   *syscalls.Caller
	builtins map[string]*BuiltinCommand
	liner    *liner.State
	done     bool
	status   int
}

// BuiltinCommand is one shell command.
type BuiltinCommand struct {
	Name  string
	Usage string
	Help  string
	Func  func(s *Shell, args []string) int
}

// NewShell attaches a root process to k.
func NewShell(k *kernel.Kernel) (*Shell, error) {
	c, err := k.Attach("shell")
	if err != nil {
		return nil, err
	}
	s := &Shell{
		Prompt: "ukernel> ",
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		kernel: k,
		caller: c,
	}
	s.builtins = make(map[string]*BuiltinCommand)
	for _, b := range builtinCommands() {
		s.builtins[b.Name] = b
	}
	return s, nil
}

// isInteractive checks if in is a terminal.
func isInteractive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ukernel_history")
}

// Run reads commands until quit or end of input and then exits the
// attached process with the last status.
func (s *Shell) Run() error {
	var err error
	if s.Interactive {
		err = s.runInteractive()
	} else {
		err = s.runNonInteractive()
	}

	if !s.done {
		if derr := s.kernel.Detach(s.caller, s.status); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

func (s *Shell) runInteractive() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = s.liner.ReadHistory(f)
		f.Close()
	}
	defer s.saveHistory()

	fmt.Fprintf(s.Stdout, "ukernel %s - process %d attached\n", s.kernel.ID(), s.caller.PID())
	fmt.Fprintln(s.Stdout, "Type 'help' for available commands.")

	for !s.done {
		line, err := s.liner.Prompt(s.Prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.Stdout)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)
		s.status = s.execute(line)
	}
	return nil
}

// runNonInteractive executes commands from Stdin.
func (s *Shell) runNonInteractive() error {
	scanner := bufio.NewScanner(s.Stdin)
	for !s.done && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.status = s.execute(line)
	}
	return scanner.Err()
}

// saveHistory persists command history to disk.
func (s *Shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

// completer provides tab completion for commands and image names.
func (s *Shell) completer(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		line = ""
	}
	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(line, " ")) {
		var out []string
		for name := range s.builtins {
			if strings.HasPrefix(name, line) {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out
	}

	switch fields[0] {
	case "exec", "run":
		prefix := ""
		if len(fields) == 2 && !strings.HasSuffix(line, " ") {
			prefix = fields[1]
		}
		var out []string
		for _, name := range s.kernel.Registry().Names() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, fields[0]+" "+name)
			}
		}
		return out
	}
	return nil
}

// execute runs one command line and returns its status.
func (s *Shell) execute(line string) int {
	fields := strings.Fields(line)
	b, ok := s.builtins[strings.ToLower(fields[0])]
	if !ok {
		fmt.Fprintf(s.Stderr, "unknown command: %s (type 'help' for commands)\n", fields[0])
		return 1
	}
	return b.Func(s, fields[1:])
}

// result prints a system call result and turns it into a status.
func (s *Shell) result(name string, r int) int {
	if r < 0 {
		fmt.Fprintf(s.Stderr, "%s: %s (%d)\n", name, syscalls.Errno(r), r)
		return 1
	}
	fmt.Fprintf(s.Stdout, "%d\n", r)
	return 0
}

func (s *Shell) usage(b string) int {
	fmt.Fprintf(s.Stderr, "usage: %s\n", s.builtins[b].Usage)
	return 2
}

func (s *Shell) intArg(b, arg string) (int, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintf(s.Stderr, "%s: %q is not a number\n", b, arg)
		return 0, false
	}
	return n, true
}

func builtinCommands() []*BuiltinCommand {
	return []*BuiltinCommand{
		{"create", "create NAME", "create a file and open it", builtinCreate},
		{"open", "open NAME", "open an existing file", builtinOpen},
		{"read", "read FD [COUNT]", "read up to COUNT bytes (default 256)", builtinRead},
		{"write", "write FD TEXT...", "write TEXT followed by a newline", builtinWrite},
		{"close", "close FD", "close a descriptor", builtinClose},
		{"unlink", "unlink NAME", "remove a file name", builtinUnlink},
		{"exec", "exec IMAGE [ARGS...]", "start a child, print its pid", builtinExec},
		{"join", "join PID", "wait for a child, print its status", builtinJoin},
		{"run", "run IMAGE [ARGS...]", "exec and join", builtinRun},
		{"ls", "ls", "list files", builtinLs},
		{"ps", "ps", "list processes", builtinPs},
		{"fds", "fds", "list open descriptors", builtinFds},
		{"images", "images", "list program images", builtinImages},
		{"help", "help", "show this help", builtinHelp},
		{"quit", "quit [STATUS]", "exit the shell process", builtinQuit},
	}
}

func builtinCreate(s *Shell, args []string) int {
	if len(args) != 1 {
		return s.usage("create")
	}
	return s.result("create", s.caller.Create(args[0]))
}

func builtinOpen(s *Shell, args []string) int {
	if len(args) != 1 {
		return s.usage("open")
	}
	return s.result("open", s.caller.Open(args[0]))
}

func builtinRead(s *Shell, args []string) int {
	if len(args) < 1 || len(args) > 2 {
		return s.usage("read")
	}
	fd, ok := s.intArg("read", args[0])
	if !ok {
		return 2
	}
	count := 256
	if len(args) == 2 {
		if count, ok = s.intArg("read", args[1]); !ok || count < 0 {
			return 2
		}
	}

	buf := make([]byte, count)
	n := s.caller.Read(fd, buf)
	if n < 0 {
		return s.result("read", n)
	}
	fmt.Fprintf(s.Stdout, "%s\n", buf[:n])
	return 0
}

func builtinWrite(s *Shell, args []string) int {
	if len(args) < 2 {
		return s.usage("write")
	}
	fd, ok := s.intArg("write", args[0])
	if !ok {
		return 2
	}
	return s.result("write", s.caller.Write(fd, []byte(strings.Join(args[1:], " ")+"\n")))
}

func builtinClose(s *Shell, args []string) int {
	if len(args) != 1 {
		return s.usage("close")
	}
	fd, ok := s.intArg("close", args[0])
	if !ok {
		return 2
	}
	return s.result("close", s.caller.Close(fd))
}

func builtinUnlink(s *Shell, args []string) int {
	if len(args) != 1 {
		return s.usage("unlink")
	}
	return s.result("unlink", s.caller.Unlink(args[0]))
}

func builtinExec(s *Shell, args []string) int {
	if len(args) < 1 {
		return s.usage("exec")
	}
	return s.result("exec", s.caller.Spawn(args[0], args[1:]...))
}

func builtinJoin(s *Shell, args []string) int {
	if len(args) != 1 {
		return s.usage("join")
	}
	pid, ok := s.intArg("join", args[0])
	if !ok {
		return 2
	}
	return s.join(pid)
}

func (s *Shell) join(pid int) int {
	var status int
	r := s.caller.Join(pid, &status)
	if r < 0 {
		return s.result("join", r)
	}
	how := "exited"
	if r == 0 {
		how = "terminated"
	}
	fmt.Fprintf(s.Stdout, "process %d %s with status %d\n", pid, how, status)
	return status
}

func builtinRun(s *Shell, args []string) int {
	if len(args) < 1 {
		return s.usage("run")
	}
	pid := s.caller.Spawn(args[0], args[1:]...)
	if pid < 0 {
		return s.result("run", pid)
	}
	return s.join(pid)
}

func builtinLs(s *Shell, _ []string) int {
	var rows [][]string
	for _, info := range s.kernel.Store().List() {
		rows = append(rows, []string{
			info.Name,
			strconv.FormatInt(info.Size, 10),
			strconv.Itoa(info.Refs),
			info.ModTime.Format(time.TimeOnly),
		})
	}
	fmt.Fprintln(s.Stdout, renderTable([]string{"NAME", "SIZE", "REFS", "MODIFIED"}, rows))
	st := s.kernel.Store().Stats()
	fmt.Fprintf(s.Stdout, "%d files, %d unlinked but open, %d references\n", st.Files, st.Pending, st.Refs)
	return 0
}

func builtinPs(s *Shell, _ []string) int {
	var rows [][]string
	for _, p := range s.kernel.Processes().GetProcesses() {
		status := ""
		if p.IsTerminated() {
			code, _ := p.ExitStatus()
			status = strconv.Itoa(code)
		}
		rows = append(rows, []string{
			strconv.Itoa(p.PID),
			strconv.Itoa(p.ParentPID),
			string(p.GetState()),
			status,
			strconv.Itoa(p.FileCount()),
			strings.TrimSpace(p.Command + " " + strings.Join(p.Args, " ")),
		})
	}
	fmt.Fprintln(s.Stdout, renderTable([]string{"PID", "PPID", "STATE", "STATUS", "FDS", "COMMAND"}, rows))
	return 0
}

func builtinFds(s *Shell, _ []string) int {
	p := s.caller.Process()
	var rows [][]string
	for _, fd := range p.Files.Handles() {
		switch fd {
		case fdtable.Stdin:
			rows = append(rows, []string{"0", "<stdin>", ""})
		case fdtable.Stdout:
			rows = append(rows, []string{"1", "<stdout>", ""})
		default:
			sess, err := p.Files.Lookup(fd)
			if err != nil {
				continue
			}
			rows = append(rows, []string{
				strconv.Itoa(fd),
				sess.File().Name(),
				strconv.FormatInt(sess.Offset(), 10),
			})
		}
	}
	fmt.Fprintln(s.Stdout, renderTable([]string{"FD", "FILE", "OFFSET"}, rows))
	return 0
}

func builtinImages(s *Shell, _ []string) int {
	fmt.Fprintln(s.Stdout, imagesTable())
	return 0
}

func builtinHelp(s *Shell, _ []string) int {
	for _, b := range builtinCommands() {
		fmt.Fprintf(s.Stdout, "  %-22s %s\n", b.Usage, b.Help)
	}
	return 0
}

func builtinQuit(s *Shell, args []string) int {
	status := 0
	if len(args) > 0 {
		n, ok := s.intArg("quit", args[0])
		if !ok {
			return 2
		}
		status = n
	}
	if err := s.kernel.Detach(s.caller, status); err != nil {
		fmt.Fprintf(s.Stderr, "quit: %s\n", err)
		return 1
	}
	s.done = true
	return status
}

func newShellCmd(flags *kernelFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Attach an interactive root process to a new kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			// Programs get no stdin: the shell owns the terminal.
			k, err := bootKernel(cfg, fdtable.NewConsole(nil, cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			sh, err := NewShell(k)
			if err != nil {
				return err
			}
			sh.Stdin = cmd.InOrStdin()
			sh.Stdout = cmd.OutOrStdout()
			sh.Stderr = cmd.ErrOrStderr()
			sh.Interactive = isInteractive(sh.Stdin)

			runErr := sh.Run()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = k.Shutdown(ctx)

			if runErr != nil {
				return runErr
			}
			if sh.status != 0 {
				return &exitStatus{code: sh.status}
			}
			return nil
		},
	}
}
