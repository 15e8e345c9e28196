package cdb

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// dbgBehavior scripts how the fake debugger reacts to one command.
type dbgBehavior struct {
	// output is written verbatim before the sentinel echo.
	output string
	// withholdMarker simulates a hung command: output is written but the
	// sentinel echo is swallowed. The swallowed marker is recorded so tests
	// can emit it late.
	withholdMarker bool
	// terminate simulates the debugger process dying upon receiving the
	// command, before any reply.
	terminate bool
}

// fakeDebugger is an in-memory stand-in for a cdb process: it consumes the
// session's input line by line and echoes sentinels the way cdb's .echo
// meta-command does, strictly in input order.
type fakeDebugger struct {
	behaviors map[string]dbgBehavior
	banner    string

	toDbgR   *io.PipeReader
	toDbgW   *io.PipeWriter
	fromDbgR *io.PipeReader
	fromDbgW *io.PipeWriter

	exited   chan struct{}
	exitOnce sync.Once
	killed   atomic.Bool

	// withholdAll swallows every sentinel echo, including the startup
	// handshake's, simulating a debugger that never settles at a prompt.
	withholdAll atomic.Bool

	// markers withheld by withholdMarker behaviors, oldest first.
	withheld chan string

	mu       sync.Mutex
	received []string
}

func newFakeDebugger(behaviors map[string]dbgBehavior, banner string) *fakeDebugger {
	toDbgR, toDbgW := io.Pipe()
	fromDbgR, fromDbgW := io.Pipe()

	d := &fakeDebugger{
		behaviors: behaviors,
		banner:    banner,
		toDbgR:    toDbgR,
		toDbgW:    toDbgW,
		fromDbgR:  fromDbgR,
		fromDbgW:  fromDbgW,
		exited:    make(chan struct{}),
		withheld:  make(chan string, 8),
	}
	go d.run()
	return d
}

// launch returns a LaunchFunc handing out this fake's transport.
func (d *fakeDebugger) launch(ctx context.Context, target Target, opts SessionOptions, log logr.Logger) (Transport, error) {
	return d, nil
}

func (d *fakeDebugger) run() {
	if d.banner != "" {
		if _, err := d.fromDbgW.Write([]byte(d.banner)); err != nil {
			return
		}
	}

	scanner := bufio.NewScanner(d.toDbgR)
	var pending dbgBehavior
	for scanner.Scan() {
		line := scanner.Text()

		if marker, isEcho := strings.CutPrefix(line, ".echo "); isEcho {
			if pending.terminate {
				d.terminate()
				return
			}
			if pending.output != "" {
				if _, err := d.fromDbgW.Write([]byte(pending.output)); err != nil {
					return
				}
			}
			if pending.withholdMarker || d.withholdAll.Load() {
				d.withheld <- marker
			} else {
				if _, err := d.fromDbgW.Write([]byte(marker + "\r\n")); err != nil {
					return
				}
			}
			pending = dbgBehavior{}
			continue
		}

		if line == "q" {
			d.terminate()
			return
		}

		d.mu.Lock()
		d.received = append(d.received, line)
		d.mu.Unlock()
		pending = d.behaviors[line]
	}
}

// emitRaw writes bytes directly to the session's output stream, bypassing
// command handling. Used to deliver stale markers or spontaneous output.
func (d *fakeDebugger) emitRaw(s string) {
	_, _ = d.fromDbgW.Write([]byte(s))
}

// withheldMarker returns the oldest marker swallowed by a withholdMarker
// behavior.
func (d *fakeDebugger) withheldMarker() string {
	return <-d.withheld
}

func (d *fakeDebugger) receivedCommands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

func (d *fakeDebugger) terminate() {
	d.exitOnce.Do(func() {
		close(d.exited)
		d.toDbgR.CloseWithError(io.ErrClosedPipe)
		d.fromDbgW.Close()
	})
}

// Transport implementation.

func (d *fakeDebugger) Write(p []byte) (int, error) {
	select {
	case <-d.exited:
		return 0, io.ErrClosedPipe
	default:
	}
	return d.toDbgW.Write(p)
}

func (d *fakeDebugger) Read(p []byte) (int, error) {
	return d.fromDbgR.Read(p)
}

func (d *fakeDebugger) Exited() <-chan struct{} {
	return d.exited
}

func (d *fakeDebugger) Kill() error {
	d.killed.Store(true)
	d.terminate()
	return nil
}

func (d *fakeDebugger) Close() error {
	d.toDbgW.Close()
	d.fromDbgR.Close()
	return nil
}

var _ Transport = (*fakeDebugger)(nil)
