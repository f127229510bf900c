// Package syscalls is the boundary between program images and the kernel.
//
// Every system call is a value of one of the Request types and enters the
// kernel through Layer.Dispatch. Dispatch never panics for a failed call:
// it returns a non-negative result on success and a negative Errno
// otherwise, and a failed call leaves the file store, the descriptor
// tables and the process table exactly as they were.
//
// Programs do not build requests by hand. They receive a Caller bound to
// their process:
//
//	func main(c *syscalls.Caller) int {
//		fd := c.Create("out.txt")
//		if fd < 0 {
//			return 1
//		}
//		c.Write(fd, []byte("hello"))
//		c.Close(fd)
//		return 0
//	}
//
// System call numbers follow the reference kernel: halt 0, exit 1, exec 2,
// join 3, create 4, open 5, read 6, write 7, close 8, unlink 9.
package syscalls
