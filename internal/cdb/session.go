package cdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	mcpio "github.com/jmfrank63/mcp-windbg/pkg/io"
	"github.com/jmfrank63/mcp-windbg/pkg/queue"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	// SessionStarting indicates the debugger process has been spawned and the
	// startup handshake is in progress.
	SessionStarting SessionState = iota

	// SessionReady indicates the session is idle and accepting commands.
	SessionReady

	// SessionExecuting indicates exactly one command is in flight.
	SessionExecuting

	// SessionShuttingDown indicates an explicit close is in progress.
	SessionShuttingDown

	// SessionTerminated indicates the debugger process has exited and the
	// session can no longer be used.
	SessionTerminated
)

func (s SessionState) String() string {
	switch s {
	case SessionStarting:
		return "starting"
	case SessionReady:
		return "ready"
	case SessionExecuting:
		return "executing"
	case SessionShuttingDown:
		return "shutting-down"
	case SessionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	DefaultStartupTimeout = 15 * time.Second
	DefaultCommandTimeout = 30 * time.Second
	DefaultGracePeriod    = time.Second
)

// SessionOptions configures session construction and command execution.
type SessionOptions struct {
	// DebuggerPath is the cdb executable to spawn.
	DebuggerPath string

	// SymbolPath, when set, is passed to cdb via -y.
	SymbolPath string

	// ExtraArgs are appended to the cdb argument vector.
	ExtraArgs []string

	// StartupTimeout bounds the startup handshake.
	StartupTimeout time.Duration

	// CommandTimeout is the default deadline for a command when the caller
	// does not supply one.
	CommandTimeout time.Duration

	// GracePeriod is how long Close waits after the graceful termination
	// input before killing the process.
	GracePeriod time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = DefaultStartupTimeout
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	return o
}

type commandResult struct {
	lines []string
	err   error
}

// commandRequest is one in-flight command. Its result channel is a
// single-slot mailbox: capacity one, written to exactly once.
type commandRequest struct {
	text     string
	timeout  time.Duration
	resultCh chan commandResult
}

// Session owns exactly one debugger process attached to one target resource.
// Commands are executed strictly one at a time, in submission order; within a
// session a single loop goroutine owns the captured output and the pending
// queue, and a single reader goroutine owns the output stream and the line
// framer. The debugger process is created once, at construction, and never
// replaced; reconnecting means constructing a new Session.
type Session struct {
	id        string
	target    Target
	opts      SessionOptions
	transport Transport
	log       logr.Logger
	createdAt time.Time

	state      atomic.Int32
	pending    *queue.ConcurrentQueue[*commandRequest]
	lines      chan string
	loopDone   chan struct{}
	shutdownCh chan struct{}
	closeOnce  sync.Once
	closeErr   error

	// Sentinels of timed-out commands whose output has not fully arrived yet.
	// The debugger answers strictly in input order, so these drain FIFO.
	// Touched only by the loop goroutine.
	staleMarkers []Marker
}

// NewSession launches a debugger process for the target and performs the
// startup handshake: a marker-only command whose echo proves the debugger
// accepted input and is idle. On handshake failure the process is killed and
// an error is returned; a failed session never becomes usable.
func NewSession(ctx context.Context, target Target, opts SessionOptions, launch LaunchFunc, log logr.Logger) (*Session, error) {
	opts = opts.withDefaults()

	id := uuid.NewString()
	log = log.WithName("session").WithValues("sessionID", id, "target", target.Key())

	transport, err := launch(ctx, target, opts, log)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:         id,
		target:     target,
		opts:       opts,
		transport:  transport,
		log:        log,
		createdAt:  time.Now(),
		pending:    queue.NewConcurrentQueue[*commandRequest](),
		lines:      make(chan string),
		loopDone:   make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
	s.state.Store(int32(SessionStarting))

	go s.readOutput()
	go s.runLoop()

	if _, err := s.Execute(ctx, "", opts.StartupTimeout); err != nil {
		if errors.Is(err, ErrCommandTimeout) {
			err = fmt.Errorf("%w: no sentinel from %s within %s", ErrStartupTimeout, target.Key(), opts.StartupTimeout)
		}
		_ = s.shutdown(ctx, false)
		return nil, err
	}

	log.Info("session ready", "kind", target.Kind().String())
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Target() Target {
	return s.target
}

func (s *Session) ResourceKey() string {
	return s.target.Key()
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Execute submits a command and blocks until it completes, times out, or the
// session dies. Commands queue FIFO behind any command already in flight;
// the debugger consumes its input strictly in order, so queuing matches its
// actual execution model. A timeout of zero uses the session default.
//
// The returned lines are exactly what the debugger emitted between command
// submission and sentinel detection, in order, with the sentinel line
// excluded. A timeout fails only this command; the session stays usable.
func (s *Session) Execute(ctx context.Context, command string, timeout time.Duration) ([]string, error) {
	switch s.State() {
	case SessionShuttingDown, SessionTerminated:
		return nil, fmt.Errorf("%w: session for %s is %s", ErrTransport, s.target.Key(), s.State())
	}

	if timeout <= 0 {
		timeout = s.opts.CommandTimeout
	}

	req := &commandRequest{
		text:     command,
		timeout:  timeout,
		resultCh: make(chan commandResult, 1),
	}
	s.pending.Enqueue(req)

	select {
	case res := <-req.resultCh:
		return res.lines, res.err
	case <-s.loopDone:
		// The loop is gone; it may still have failed our request while
		// draining the queue.
		select {
		case res := <-req.resultCh:
			return res.lines, res.err
		default:
			return nil, fmt.Errorf("%w: session for %s closed", ErrTransport, s.target.Key())
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close requests a graceful shutdown: the target-appropriate termination
// input is written (a quit command, or a detach control byte for remote
// targets), and if the process has not exited within the grace period it is
// killed. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	return s.shutdown(ctx, true)
}

func (s *Session) shutdown(ctx context.Context, graceful bool) error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(SessionShuttingDown))
		close(s.shutdownCh)
		<-s.loopDone

		// The loop has stopped, so the input stream is exclusively ours now.
		if graceful {
			if _, err := s.transport.Write(s.target.TerminationInput()); err != nil {
				s.log.V(1).Info("could not write termination input; process presumed dead", "error", err)
			} else {
				select {
				case <-s.transport.Exited():
				case <-time.After(s.opts.GracePeriod):
				case <-ctx.Done():
				}
			}
		}

		select {
		case <-s.transport.Exited():
		default:
			s.log.V(1).Info("debugger still running; killing", "graceful", graceful)
			if err := s.transport.Kill(); err != nil {
				s.closeErr = fmt.Errorf("killing debugger for %s: %w", s.target.Key(), err)
			}
		}

		if err := s.transport.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.state.Store(int32(SessionTerminated))
		s.log.V(1).Info("session terminated")
	})
	return s.closeErr
}

// readOutput pumps the transport's output stream through the line framer and
// hands completed lines to the loop. It exits when the stream ends (process
// exit) or the loop is gone.
func (s *Session) readOutput() {
	defer close(s.lines)

	framer := mcpio.NewLineFramer()
	buf := make([]byte, 4096)
	for {
		n, readErr := s.transport.Read(buf)
		if n > 0 {
			for _, line := range framer.Push(buf[:n]) {
				select {
				case s.lines <- line:
				case <-s.loopDone:
					return
				}
			}
		}
		if readErr != nil {
			// Stream ended. An unterminated trailing fragment cannot belong
			// to a completed command and is dropped, not force-flushed.
			framer.Reset()
			return
		}
	}
}

// runLoop services the pending-command queue one request at a time and
// consumes output lines. It is the only goroutine that writes to the
// debugger's input while the session is live.
func (s *Session) runLoop() {
	defer func() {
		// Fail anything still queued so no caller is left waiting forever.
		for {
			req, found := s.pending.Dequeue()
			if !found {
				break
			}
			req.resultCh <- commandResult{err: fmt.Errorf("%w: session for %s closed", ErrTransport, s.target.Key())}
		}
		close(s.loopDone)
	}()

	for {
		select {
		case <-s.shutdownCh:
			return

		case line, ok := <-s.lines:
			if !ok {
				s.state.Store(int32(SessionTerminated))
				s.log.V(1).Info("debugger output stream ended while idle")
				return
			}
			// Output with no command in flight: late output of a timed-out
			// command, or a stale sentinel. Not attributable to any request.
			s.discardStale(line)
			s.log.V(2).Info("discarding output outside of a command", "line", line)

		case <-s.pending.NewData():
			for {
				select {
				case <-s.shutdownCh:
					return
				default:
				}
				req, found := s.pending.Dequeue()
				if !found {
					break
				}
				if !s.runCommand(req) {
					return
				}
			}
		}
	}
}

// runCommand executes one request to completion. Returns false when the
// session can no longer run commands (process exit or shutdown).
func (s *Session) runCommand(req *commandRequest) bool {
	marker, err := NewMarker()
	if err != nil {
		req.resultCh <- commandResult{err: fmt.Errorf("generating sentinel: %w", err)}
		return true
	}

	s.state.Store(int32(SessionExecuting))

	var input []byte
	if req.text != "" {
		input = append(input, req.text...)
		input = append(input, '\n')
	}
	input = append(input, marker.EchoCommand()...)
	input = append(input, '\n')

	started := time.Now()
	if _, err := s.transport.Write(input); err != nil {
		s.state.Store(int32(SessionTerminated))
		req.resultCh <- commandResult{err: fmt.Errorf("%w: writing command %q to %s: %v", ErrTransport, req.text, s.target.Key(), err)}
		return false
	}

	timer := time.NewTimer(req.timeout)
	defer timer.Stop()

	var captured []string
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.state.Store(int32(SessionTerminated))
				req.resultCh <- commandResult{err: fmt.Errorf("%w: debugger for %s exited while command %q was pending", ErrTransport, s.target.Key(), req.text)}
				return false
			}
			if s.discardStale(line) {
				continue
			}
			if marker.Matches(line) {
				s.state.Store(int32(SessionReady))
				req.resultCh <- commandResult{lines: captured}
				s.log.V(1).Info("command completed", "command", req.text, "lines", len(captured), "elapsed", time.Since(started))
				return true
			}
			if IsMarkerLine(line) {
				// A sentinel-shaped line we are not waiting for. Keeping it out
				// of the capture protects callers from marker noise.
				continue
			}
			captured = append(captured, line)

		case <-timer.C:
			s.state.Store(int32(SessionReady))
			// The command's remaining output and sentinel are still on their
			// way; remember the sentinel so later commands can skip past them.
			s.staleMarkers = append(s.staleMarkers, marker)
			req.resultCh <- commandResult{err: fmt.Errorf("%w: command %q on %s after %s", ErrCommandTimeout, req.text, s.target.Key(), time.Since(started))}
			return true

		case <-s.shutdownCh:
			req.resultCh <- commandResult{err: fmt.Errorf("%w: session for %s is shutting down", ErrTransport, s.target.Key())}
			return false
		}
	}
}

// discardStale reports whether line belongs to a timed-out command. While any
// stale sentinel is outstanding, every line up to and including the oldest one
// is that command's late output and must not be captured. Loop goroutine only.
func (s *Session) discardStale(line string) bool {
	if len(s.staleMarkers) == 0 {
		return false
	}
	if s.staleMarkers[0].Matches(line) {
		s.staleMarkers = s.staleMarkers[1:]
	}
	return true
}
