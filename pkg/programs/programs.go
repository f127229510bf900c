// Package programs holds the built-in program images of the kernel.
//
// Most of them are assertion programs: they exercise one group of system
// calls and exit 0 on success and 1 at the first unexpected result.
package programs

import (
	"strconv"
	"strings"

	"ukernel/pkg/engine"
	"ukernel/pkg/fdtable"
	"ukernel/pkg/syscalls"
)

// Image is a named program.
type Image struct {
	Name        string
	Description string
	Program     syscalls.Program
}

// Images returns every built-in image.
func Images() []Image {
	return []Image{
		{"halt", "halt the kernel", Halt},
		{"create", "exclusive create and name validation", Create},
		{"open", "open of existing and missing files", Open},
		{"close", "close, double close and bad handles", Close},
		{"read", "create, write, close, reopen, read and unlink a file", Read},
		{"write", "write a file and read it back", Write},
		{"unlink", "unlink hides a name", Unlink},
		{"exec", "exec validation", Exec},
		{"join", "join once, twice and without a status", Join},
		{"multiproc", "three children writing files, joined in order", MultiProc},
		{"multiproc_child", "child of multiproc", MultiProcChild},
		{"echo", "print the arguments", Echo},
		{"cat", "copy files or standard input to standard output", Cat},
	}
}

// RegisterAll registers every built-in image with reg.
func RegisterAll(reg *engine.Registry) error {
	for _, img := range Images() {
		if err := reg.Register(img.Name, img.Program); err != nil {
			return err
		}
	}
	return nil
}

// Halt halts the kernel. A child cannot halt and simply exits.
func Halt(c *syscalls.Caller) int {
	c.Halt()
	return 0
}

// Create checks exclusive create.
func Create(c *syscalls.Caller) int {
	if c.Create("testfile.txt") < 0 {
		return 1
	}
	if c.Create("testfile.txt") >= 0 {
		return 1
	}
	if c.Create("") >= 0 {
		return 1
	}
	return 0
}

// Open checks opening missing, existing and unnamed files.
func Open(c *syscalls.Caller) int {
	if c.Open("nonexistent.txt") >= 0 {
		return 1
	}
	if c.Create("testfile.txt") < 0 {
		return 1
	}
	if c.Open("testfile.txt") < 0 {
		return 1
	}
	if c.Open("") >= 0 {
		return 1
	}
	return 0
}

// Close checks that a handle closes exactly once.
func Close(c *syscalls.Caller) int {
	if c.Close(-1) >= 0 {
		return 1
	}
	fd := c.Create("testfile.txt")
	if fd < 0 {
		return 1
	}
	if c.Close(fd) < 0 {
		return 1
	}
	if c.Close(fd) >= 0 {
		return 1
	}
	return 0
}

// Read runs every file system call against one file.
func Read(c *syscalls.Caller) int {
	const filename = "comprehensive_test.txt"

	c.Print("===== COMPREHENSIVE FILE SYSCALL TEST =====\n")

	c.Print("Test 1: Creating file...\n")
	fd := c.Create(filename)
	if fd < 0 {
		return fail(c, "FAILED: File creation failed\n")
	}
	c.Print("SUCCESS: File created with fd = " + strconv.Itoa(fd) + "\n")

	c.Print("Test 2: Writing to file...\n")
	content := []byte("This is content for the comprehensive test")
	if c.Write(fd, content) != len(content) {
		c.Close(fd)
		return fail(c, "FAILED: Write operation failed\n")
	}
	c.Print("SUCCESS: Wrote content to file\n")

	c.Print("Test 3: Closing file...\n")
	if c.Close(fd) < 0 {
		return fail(c, "FAILED: File close failed\n")
	}
	c.Print("SUCCESS: File closed\n")

	c.Print("Test 4: Opening file...\n")
	fd = c.Open(filename)
	if fd < 0 {
		return fail(c, "FAILED: File open failed\n")
	}
	c.Print("SUCCESS: File opened with fd = " + strconv.Itoa(fd) + "\n")

	c.Print("Test 5: Reading from file...\n")
	buf := make([]byte, 99)
	n := c.Read(fd, buf)
	if n < 0 {
		c.Close(fd)
		return fail(c, "FAILED: Read operation failed\n")
	}
	if string(buf[:n]) != string(content) {
		c.Close(fd)
		return fail(c, "FAILED: Read returned different content\n")
	}
	c.Print("SUCCESS: Read content: " + string(buf[:n]) + "\n")

	c.Print("Test 6: Closing file again...\n")
	if c.Close(fd) < 0 {
		return fail(c, "FAILED: File close failed\n")
	}
	c.Print("SUCCESS: File closed\n")

	c.Print("Test 7: Unlinking file...\n")
	if c.Unlink(filename) < 0 {
		return fail(c, "FAILED: File unlink failed\n")
	}
	c.Print("SUCCESS: File unlinked\n")

	c.Print("Test 8: Opening unlinked file...\n")
	if fd = c.Open(filename); fd >= 0 {
		c.Close(fd)
		return fail(c, "FAILED: Unlinked file could still be opened!\n")
	}
	c.Print("SUCCESS: Cannot open unlinked file (as expected)\n")

	c.Print("===== ALL TESTS COMPLETED =====\n")
	return 0
}

// Write writes a file and reads it back.
func Write(c *syscalls.Caller) int {
	const filename = "test_write.txt"

	fd := c.Create(filename)
	if fd < 0 {
		return fail(c, "File creation failed\n")
	}
	message := []byte("This text is being written to a file using write syscall")
	n := c.Write(fd, message)
	if n != len(message) {
		c.Close(fd)
		return fail(c, "Write to file failed\n")
	}
	c.Print("Successfully wrote " + strconv.Itoa(n) + " bytes to file\n")
	c.Close(fd)

	fd = c.Open(filename)
	if fd < 0 {
		return fail(c, "Failed to open file for reading\n")
	}
	buf := make([]byte, 99)
	n = c.Read(fd, buf)
	if n != len(message) {
		c.Close(fd)
		return fail(c, "Read back failed\n")
	}
	c.Print("Content read back: " + string(buf[:n]) + "\n")
	c.Close(fd)
	return 0
}

// Unlink checks that unlink hides a file name.
func Unlink(c *syscalls.Caller) int {
	const filename = "test_unlink.txt"

	fd := c.Create(filename)
	if fd < 0 {
		return fail(c, "File creation failed\n")
	}
	c.Write(fd, []byte("This file will be deleted"))
	c.Close(fd)

	if fd = c.Open(filename); fd < 0 {
		return fail(c, "File doesn't exist before unlink (error)\n")
	}
	c.Print("File exists before unlink (correct)\n")
	c.Close(fd)

	if c.Unlink(filename) < 0 {
		return fail(c, "Failed to unlink file\n")
	}
	c.Print("File unlinked successfully\n")

	if fd = c.Open(filename); fd >= 0 {
		c.Close(fd)
		return fail(c, "ERROR: File still exists after unlink!\n")
	}
	c.Print("File doesn't exist after unlink (correct)\n")

	if c.Unlink("nonexistent.txt") >= 0 {
		return fail(c, "ERROR: Unlink of nonexistent file succeeded!\n")
	}
	c.Print("As expected, cannot unlink nonexistent file\n")
	return 0
}

// Exec checks exec validation.
func Exec(c *syscalls.Caller) int {
	if c.Spawn("nonexistent.coff") >= 0 {
		return 1
	}
	if c.Spawn("test/halt.coff") < 0 {
		return 1
	}
	if c.Spawn("") >= 0 {
		return 1
	}
	if c.Exec("test/halt.coff", 1, []*string{nil}) >= 0 {
		return 1
	}
	return 0
}

// Join checks that a child is joined exactly once.
func Join(c *syscalls.Caller) int {
	var status int
	if c.Join(-1, &status) >= 0 {
		return 1
	}

	pid := c.Spawn("test/halt.coff")
	if pid < 0 {
		return 1
	}
	if c.Join(pid, &status) < 0 {
		return 1
	}
	if c.Join(pid, &status) >= 0 {
		return 1
	}

	pid = c.Spawn("test/halt.coff")
	if pid < 0 {
		return 1
	}
	if c.Join(pid, nil) < 0 {
		return 1
	}
	return 0
}

// MultiProcChildren is the number of children MultiProc starts.
const MultiProcChildren = 3

// MultiProcBufferSize is the size of the file each child writes.
const MultiProcBufferSize = 1024

// MultiProc starts children that each write a file and exit with their
// index, then joins them in order.
func MultiProc(c *syscalls.Caller) int {
	pids := make([]int, MultiProcChildren)
	for i := range pids {
		pids[i] = c.Spawn("multiproc_child.coff", strconv.Itoa(i))
		if pids[i] < 0 {
			return fail(c, "Error: Failed to create child process\n")
		}
	}

	for i, pid := range pids {
		var status int
		if c.Join(pid, &status) < 0 {
			return fail(c, "Error: Failed to join child\n")
		}
		if status != i {
			return fail(c, "Error: Child returned wrong status\n")
		}
	}

	c.Print("Success: All child processes completed\n")
	return 0
}

// MultiProcChild writes file_N filled with the letter for N and exits
// with status N.
func MultiProcChild(c *syscalls.Caller) int {
	args := c.Args()
	if len(args) != 1 || len(args[0]) == 0 {
		return fail(c, "Error: Invalid number of arguments\n")
	}
	n := int(args[0][0] - '0')

	buf := make([]byte, MultiProcBufferSize)
	for i := 0; i < len(buf)-1; i++ {
		buf[i] = byte('A' + n)
	}

	fd := c.Create(MultiProcFile(n))
	if fd < 0 {
		return fail(c, "Error: creat failed\n")
	}
	c.Write(fd, buf)
	c.Close(fd)

	c.Exit(n)
	return n
}

// MultiProcFile is the name of the file written by child n.
func MultiProcFile(n int) string {
	return "file_" + strconv.Itoa(n)
}

// Echo prints its arguments separated by spaces.
func Echo(c *syscalls.Caller) int {
	if c.Print(strings.Join(c.Args(), " ")+"\n") < 0 {
		return 1
	}
	return 0
}

// Cat copies each named file to standard output, or standard input when
// there are no arguments.
func Cat(c *syscalls.Caller) int {
	args := c.Args()
	if len(args) == 0 {
		return copyTo(c, fdtable.Stdin)
	}

	status := 0
	for _, name := range args {
		fd := c.Open(name)
		if fd < 0 {
			c.Print("cat: " + name + ": " + syscalls.Errno(fd).Error() + "\n")
			status = 1
			continue
		}
		if copyTo(c, fd) != 0 {
			status = 1
		}
		c.Close(fd)
	}
	return status
}

func copyTo(c *syscalls.Caller, fd int) int {
	buf := make([]byte, 128)
	for {
		n := c.Read(fd, buf)
		if n < 0 {
			return 1
		}
		if n == 0 {
			return 0
		}
		if c.Write(fdtable.Stdout, buf[:n]) != n {
			return 1
		}
	}
}

func fail(c *syscalls.Caller, msg string) int {
	c.Print(msg)
	return 1
}
