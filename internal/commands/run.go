package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmfrank63/mcp-windbg/internal/cdb"
)

// targetFlags are the mutually exclusive flags selecting a debugging target.
type targetFlags struct {
	dump   string
	remote string
	trace  string
}

func (f *targetFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.dump, "dump", "", "Path to a crash dump file (.dmp) to open.")
	fs.StringVar(&f.remote, "remote", "", "Remote debugging connection string, e.g. tcp:Port=5005,Server=debughost.")
	fs.StringVar(&f.trace, "trace", "", "Path to a Time Travel Debugging trace file (.run) to open.")
}

// target resolves the flags into exactly one validated target.
func (f *targetFlags) target() (cdb.Target, error) {
	set := 0
	for _, value := range []string{f.dump, f.remote, f.trace} {
		if value != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of --dump, --remote, or --trace is required", cdb.ErrInvalidTarget)
	}

	switch {
	case f.dump != "":
		return cdb.NewDumpTarget(f.dump)
	case f.remote != "":
		return cdb.NewRemoteTarget(f.remote)
	default:
		return cdb.NewTraceTarget(f.trace)
	}
}

func newRunCommand(a *app) *cobra.Command {
	var targets targetFlags
	var timeout time.Duration

	runCmd := &cobra.Command{
		Use:   "run (--dump FILE | --remote CONNECTION | --trace FILE) COMMAND...",
		Short: "Opens a debugging session, executes commands, and prints their output",
		Long: `Opens a session against the given target, executes each debugger command in
order, prints the completed output of each, and shuts the session down.

Example:
  mcp-windbg run --dump C:\dumps\app.dmp "!analyze -v" "kb"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := targets.target()
			if err != nil {
				return err
			}
			return a.runCommands(cmd, target, args, timeout)
		},
	}

	targets.register(runCmd.Flags())
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-command timeout. Defaults to the configured command timeout.")

	return runCmd
}

func (a *app) runCommands(cmd *cobra.Command, target cdb.Target, commands []string, timeout time.Duration) error {
	registry, err := a.sessionRegistry()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer registry.ShutdownAll(ctx)

	session, err := registry.GetOrCreate(ctx, target)
	if err != nil {
		return fmt.Errorf("opening %s target: %w", target.Kind(), err)
	}

	for _, command := range commands {
		lines, err := registry.Run(ctx, session.ResourceKey(), command, timeout)
		if err != nil {
			return fmt.Errorf("command %q: %w", command, err)
		}
		for _, line := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}

	return nil
}
