package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"

	"github.com/go-logr/logr"
)

type OSExecutor struct {
	log logr.Logger
}

func NewOSExecutor(log logr.Logger) Executor {
	return &OSExecutor{
		log: log.WithName("os-executor"),
	}
}

func (e *OSExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, handler ProcessExitHandler) (int32, func(), error) {
	if err := cmd.Start(); err != nil {
		return UnknownPID, nil, err
	}

	pid := int32(cmd.Process.Pid)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	armed := make(chan struct{})
	var armOnce sync.Once
	startWaitForExit := func() {
		armOnce.Do(func() { close(armed) })
	}

	go func() {
		var waitErr error
		select {
		case waitErr = <-waitCh:
			// The process exited on its own.
		case <-ctx.Done():
			if stopErr := e.StopProcess(pid); stopErr != nil {
				e.log.Error(stopErr, "could not stop process upon context expiration", "pid", pid)
			}
			waitErr = <-waitCh
		}

		// Exit notifications are suppressed until the caller arms them.
		<-armed

		if handler != nil {
			exitCode, execErr := getProcessExecResult(waitErr, cmd)
			handler.OnProcessExited(pid, exitCode, errors.Join(execErr, ctx.Err()))
		}
	}()

	return pid, startWaitForExit, nil
}

func (e *OSExecutor) StopProcess(pid int32) error {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		// The process is already gone.
		return nil
	}

	e.log.V(1).Info("killing process", "pid", pid)
	err = proc.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Returns the process exit code and execution error depending on the result of the command wait call.
func getProcessExecResult(waitErr error, cmd *exec.Cmd) (int32, error) {
	var ee *exec.ExitError
	if waitErr == nil {
		return int32(cmd.ProcessState.ExitCode()), nil
	} else if errors.As(waitErr, &ee) {
		return int32(ee.ExitCode()), nil
	} else {
		return UnknownExitCode, waitErr
	}
}

var _ Executor = (*OSExecutor)(nil)
