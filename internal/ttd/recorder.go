package ttd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	ps "github.com/shirou/gopsutil/v4/process"

	"github.com/jmfrank63/mcp-windbg/internal/discovery"
	"github.com/jmfrank63/mcp-windbg/pkg/process"
	"github.com/jmfrank63/mcp-windbg/pkg/resiliency"
)

const (
	traceFileWaitInitialInterval = 50 * time.Millisecond
	traceFileWaitTimeout         = 10 * time.Second
)

// ErrProcessNotFound is returned when an attach recording names a process
// that does not exist.
var ErrProcessNotFound = errors.New("process not found")

// Recorder runs the TTD recorder executable and resolves the trace file it
// produces.
type Recorder struct {
	ttdPath  string
	executor process.Executor
	log      logr.Logger
}

func NewRecorder(ttdPath string, executor process.Executor, log logr.Logger) *Recorder {
	return &Recorder{
		ttdPath:  ttdPath,
		executor: executor,
		log:      log.WithName("ttd"),
	}
}

// RecordLaunch records a trace of a newly launched executable and returns
// the path of the trace file. It blocks until the recorded process exits.
func (r *Recorder) RecordLaunch(ctx context.Context, req LaunchRecording) (string, error) {
	args, err := req.Args()
	if err != nil {
		return "", err
	}
	return r.record(ctx, args, req.OutDir)
}

// RecordAttach attaches the recorder to a running process and returns the
// path of the trace file once recording completes.
func (r *Recorder) RecordAttach(ctx context.Context, req AttachRecording) (string, error) {
	args, err := req.Args()
	if err != nil {
		return "", err
	}

	name, err := runningProcessName(req.PID)
	if err != nil {
		return "", err
	}
	r.log.V(1).Info("attaching trace recorder", "pid", req.PID, "processName", name)

	return r.record(ctx, args, req.OutDir)
}

func (r *Recorder) record(ctx context.Context, args []string, outDir string) (string, error) {
	existing, err := knownTraces(outDir)
	if err != nil {
		return "", err
	}

	r.log.V(1).Info("starting trace recorder", "path", r.ttdPath, "args", args)
	cmd := exec.Command(r.ttdPath, args...)
	exitCode, err := process.Run(ctx, r.executor, cmd)
	if err != nil {
		return "", fmt.Errorf("running trace recorder: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("trace recorder exited with code %d", exitCode)
	}

	// The recorder can finish flushing the trace file slightly after the
	// process exits; poll for it.
	waitCtx, cancel := context.WithTimeout(ctx, traceFileWaitTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = traceFileWaitInitialInterval
	tracePath, err := resiliency.RetryGet(waitCtx, b, func() (string, error) {
		return newTrace(outDir, existing)
	})
	if err != nil {
		return "", fmt.Errorf("trace recorder succeeded but no trace file appeared in %q: %w", outDir, err)
	}

	r.log.Info("trace recorded", "trace", tracePath)
	return tracePath, nil
}

// runningProcessName verifies the pid refers to a live process and returns
// its executable name for logging.
func runningProcessName(pid int32) (string, error) {
	proc, err := ps.NewProcess(pid)
	if err != nil {
		if errors.Is(err, ps.ErrorProcessNotRunning) {
			return "", fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
		}
		return "", fmt.Errorf("inspecting pid %d: %w", pid, err)
	}

	name, err := proc.Name()
	if err != nil {
		// The process exists; a missing name only degrades logging.
		return "", nil
	}
	return name, nil
}

func knownTraces(outDir string) (map[string]bool, error) {
	traces, err := discovery.ListTraces(outDir, false)
	if err != nil {
		return nil, fmt.Errorf("listing existing traces: %w", err)
	}
	known := make(map[string]bool, len(traces))
	for _, trace := range traces {
		known[trace.Path] = true
	}
	return known, nil
}

func newTrace(outDir string, existing map[string]bool) (string, error) {
	traces, err := discovery.ListTraces(outDir, false)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	for _, trace := range traces {
		if !existing[trace.Path] {
			return trace.Path, nil
		}
	}
	return "", fmt.Errorf("no new trace file in %q yet", outDir)
}
