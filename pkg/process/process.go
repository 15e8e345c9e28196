package process

import (
	"context"
	"os/exec"
)

// Run starts the command via the executor and blocks until the process exits
// or the context is cancelled (which terminates the process).
// Returns the process exit code.
func Run(ctx context.Context, executor Executor, cmd *exec.Cmd) (int32, error) {
	exitCh := make(chan ProcessExitInfo, 1)

	_, startWaitForExit, err := executor.StartProcess(ctx, cmd, NewChannelProcessExitHandler(exitCh))
	if err != nil {
		return UnknownExitCode, err
	}
	startWaitForExit()

	ei := <-exitCh
	return ei.ExitCode, ei.Err
}
