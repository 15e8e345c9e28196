package cdb

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/go-logr/logr"

	"github.com/jmfrank63/mcp-windbg/pkg/process"
)

// Transport is the byte-level connection between a Session and its debugger
// process: a write side for command input, a read side for the combined
// output stream, an exit notification, and forceful termination.
// Production sessions use a spawned cdb process; tests substitute in-memory
// pipes.
type Transport interface {
	// Write sends bytes to the debugger's input.
	// Writes after process exit fail immediately.
	Write(p []byte) (int, error)

	// Read reads the next chunk of the debugger's output stream.
	// Returns an error (typically io.EOF) once the process has exited and
	// the stream is drained.
	Read(p []byte) (int, error)

	// Exited is closed when the debugger process has exited.
	Exited() <-chan struct{}

	// Kill forcibly terminates the debugger process.
	Kill() error

	// Close releases the transport's resources. It does not stop the process.
	Close() error
}

// LaunchFunc produces a connected Transport for a target. The registry's
// default implementation spawns cdb via the process executor.
type LaunchFunc func(ctx context.Context, target Target, opts SessionOptions, log logr.Logger) (Transport, error)

type processTransport struct {
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	pid      int32
	executor process.Executor
	exited   chan struct{}
}

// NewProcessLaunch returns a LaunchFunc that spawns the configured debugger
// executable and wires its stdio into a Transport. Stderr output is logged,
// not captured: cdb writes all command responses to stdout.
func NewProcessLaunch(executor process.Executor) LaunchFunc {
	return func(ctx context.Context, target Target, opts SessionOptions, log logr.Logger) (Transport, error) {
		if opts.DebuggerPath == "" {
			return nil, fmt.Errorf("%w: no debugger executable configured", ErrInvalidTarget)
		}

		args := LaunchArgs(target, opts.SymbolPath, opts.ExtraArgs)
		cmd := exec.Command(opts.DebuggerPath, args...)

		stdin, stdinErr := cmd.StdinPipe()
		if stdinErr != nil {
			return nil, fmt.Errorf("failed to create stdin pipe: %w", stdinErr)
		}

		stdout, stdoutErr := cmd.StdoutPipe()
		if stdoutErr != nil {
			stdin.Close()
			return nil, fmt.Errorf("failed to create stdout pipe: %w", stdoutErr)
		}

		stderr, stderrErr := cmd.StderrPipe()
		if stderrErr != nil {
			stdin.Close()
			stdout.Close()
			return nil, fmt.Errorf("failed to create stderr pipe: %w", stderrErr)
		}

		t := &processTransport{
			stdin:    stdin,
			stdout:   stdout,
			executor: executor,
			exited:   make(chan struct{}),
		}

		exitHandler := process.ProcessExitHandlerFunc(func(pid int32, exitCode int32, err error) {
			if err != nil {
				log.V(1).Info("debugger process exited with error", "pid", pid, "exitCode", exitCode, "error", err)
			} else {
				log.V(1).Info("debugger process exited", "pid", pid, "exitCode", exitCode)
			}
			close(t.exited)
		})

		pid, startWaitForExit, startErr := executor.StartProcess(ctx, cmd, exitHandler)
		if startErr != nil {
			stdin.Close()
			stdout.Close()
			stderr.Close()
			return nil, fmt.Errorf("failed to start debugger: %w", startErr)
		}
		startWaitForExit()

		go logStderr(stderr, log)

		log.Info("launched debugger process",
			"command", opts.DebuggerPath,
			"args", args,
			"pid", pid)

		t.pid = pid
		return t, nil
	}
}

func (t *processTransport) Write(p []byte) (int, error) {
	return t.stdin.Write(p)
}

func (t *processTransport) Read(p []byte) (int, error) {
	return t.stdout.Read(p)
}

func (t *processTransport) Exited() <-chan struct{} {
	return t.exited
}

func (t *processTransport) Kill() error {
	return t.executor.StopProcess(t.pid)
}

func (t *processTransport) Close() error {
	stdinErr := t.stdin.Close()
	stdoutErr := t.stdout.Close()
	if stdinErr != nil {
		return stdinErr
	}
	return stdoutErr
}

// logStderr reads and logs stderr from the debugger.
func logStderr(stderr io.Reader, log logr.Logger) {
	buf := make([]byte, 1024)
	for {
		n, readErr := stderr.Read(buf)
		if n > 0 {
			log.V(1).Info("debugger stderr", "output", string(buf[:n]))
		}
		if readErr != nil {
			return
		}
	}
}
