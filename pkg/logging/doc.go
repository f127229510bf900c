// Package logging provides the Logger used throughout the kernel and two
// implementations: a ConsoleLogger writing to an io.Writer and a NullLogger
// that discards everything.
package logging
