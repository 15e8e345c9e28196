package cdb

import "errors"

var (
	// ErrInvalidTarget is returned when a target specification is missing,
	// ambiguous, or malformed.
	ErrInvalidTarget = errors.New("invalid target specification")

	// ErrStartupTimeout is returned when the debugger does not echo the first
	// sentinel within the startup deadline.
	ErrStartupTimeout = errors.New("debugger startup timed out")

	// ErrCommandTimeout is returned when a command's deadline elapses before
	// its sentinel is observed. The session remains usable.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrTransport is returned when the debugger's input or output channel
	// fails, typically because the process has exited.
	ErrTransport = errors.New("debugger transport failure")

	// ErrUnknownSession is returned when an operation references a resource
	// key that has no live session.
	ErrUnknownSession = errors.New("no session for resource key")
)
