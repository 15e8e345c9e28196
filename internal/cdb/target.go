package cdb

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TargetKind identifies the kind of debugging target behind a session.
type TargetKind int

const (
	TargetDump TargetKind = iota
	TargetRemote
	TargetTrace
)

func (k TargetKind) String() string {
	switch k {
	case TargetDump:
		return "dump"
	case TargetRemote:
		return "remote"
	case TargetTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Target is a closed variant over the three supported debugging targets:
// a crash dump file, a live remote connection, or a TTD trace file.
// Exactly one concrete payload exists per target; validation happens in the
// constructors so an invalid Target value cannot be obtained.
type Target interface {
	// Key returns the canonical resource key that deduplicates sessions.
	Key() string

	// Kind returns the target kind.
	Kind() TargetKind

	// Args returns the cdb argument vector (excluding the executable path)
	// that opens this target.
	Args() []string

	// TerminationInput returns the bytes written to the debugger's input to
	// request a graceful shutdown.
	TerminationInput() []byte

	isTarget()
}

// detachControlByte ends a remote debugging client (cdb's Ctrl+B).
// Quitting with "q" would terminate the remote debugging server instead.
const detachControlByte = 0x02

var quitInput = []byte("q\n")

type DumpTarget struct {
	Path string
}

func NewDumpTarget(path string) (DumpTarget, error) {
	abs, err := normalizePath(path, "dump file path")
	if err != nil {
		return DumpTarget{}, err
	}
	return DumpTarget{Path: abs}, nil
}

func (t DumpTarget) Key() string              { return t.Path }
func (t DumpTarget) Kind() TargetKind         { return TargetDump }
func (t DumpTarget) Args() []string           { return []string{"-z", t.Path} }
func (t DumpTarget) TerminationInput() []byte { return quitInput }
func (t DumpTarget) isTarget()                {}

type RemoteTarget struct {
	Connection string
}

func NewRemoteTarget(connection string) (RemoteTarget, error) {
	if strings.TrimSpace(connection) == "" {
		return RemoteTarget{}, fmt.Errorf("%w: empty remote connection string", ErrInvalidTarget)
	}
	return RemoteTarget{Connection: connection}, nil
}

func (t RemoteTarget) Key() string              { return "remote:" + t.Connection }
func (t RemoteTarget) Kind() TargetKind         { return TargetRemote }
func (t RemoteTarget) Args() []string           { return []string{"-remote", t.Connection} }
func (t RemoteTarget) TerminationInput() []byte { return []byte{detachControlByte} }
func (t RemoteTarget) isTarget()                {}

type TraceTarget struct {
	Path string
}

func NewTraceTarget(path string) (TraceTarget, error) {
	abs, err := normalizePath(path, "trace file path")
	if err != nil {
		return TraceTarget{}, err
	}
	return TraceTarget{Path: abs}, nil
}

func (t TraceTarget) Key() string      { return t.Path }
func (t TraceTarget) Kind() TargetKind { return TargetTrace }

// A TTD trace opens through the same -z flag as a crash dump.
func (t TraceTarget) Args() []string           { return []string{"-z", t.Path} }
func (t TraceTarget) TerminationInput() []byte { return quitInput }
func (t TraceTarget) isTarget()                {}

func normalizePath(path string, what string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty %s", ErrInvalidTarget, what)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s %q: %v", ErrInvalidTarget, what, path, err)
	}
	return abs, nil
}

// LaunchArgs builds the full cdb argument vector for a target:
// the target-opening arguments, then the symbol path (if any), then any
// extra arguments supplied by the caller.
func LaunchArgs(target Target, symbolPath string, extraArgs []string) []string {
	args := target.Args()
	if symbolPath != "" {
		args = append(args, "-y", symbolPath)
	}
	args = append(args, extraArgs...)
	return args
}
