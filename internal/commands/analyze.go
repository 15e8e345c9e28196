package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmfrank63/mcp-windbg/internal/cdb"
)

const analyzeHelp = `Debugger commands are sent to the current session verbatim. Lines starting
with a dot-slash are handled locally:

  ./open dump FILE        open a crash dump session and make it current
  ./open remote CONN      open a remote debugging session
  ./open trace FILE       open a TTD trace session
  ./use KEY               switch the current session
  ./sessions              list open sessions
  ./close [KEY]           close a session (default: the current one)
  ./quit                  close all sessions and exit`

func newAnalyzeCommand(a *app) *cobra.Command {
	var targets targetFlags
	var timeout time.Duration

	analyzeCmd := &cobra.Command{
		Use:   "analyze [--dump FILE | --remote CONNECTION | --trace FILE]",
		Short: "Interactive debugging shell over one or more sessions",
		Long: `Starts an interactive shell. Each input line is executed as a debugger
command against the current session and its completed output is printed.

` + analyzeHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShell(cmd, targets, timeout)
		},
	}

	targets.register(analyzeCmd.Flags())
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-command timeout. Defaults to the configured command timeout.")

	return analyzeCmd
}

// shell is the interactive loop state: the registry plus the key of the
// session input lines are routed to.
type shell struct {
	app     *app
	out     io.Writer
	timeout time.Duration
	current string
}

func (a *app) runShell(cmd *cobra.Command, targets targetFlags, timeout time.Duration) error {
	registry, err := a.sessionRegistry()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer registry.ShutdownAll(ctx)

	sh := &shell{app: a, out: cmd.OutOrStdout(), timeout: timeout}

	// An initial target on the command line opens the first session.
	if targets.dump != "" || targets.remote != "" || targets.trace != "" {
		target, err := targets.target()
		if err != nil {
			return err
		}
		session, err := registry.GetOrCreate(ctx, target)
		if err != nil {
			return err
		}
		sh.current = session.ResourceKey()
		fmt.Fprintf(sh.out, "opened %s\n", sh.current)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(sh.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "./") {
			quit, err := sh.handleMeta(cmd, line)
			if err != nil {
				fmt.Fprintf(sh.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if sh.current == "" {
			fmt.Fprintln(sh.out, "no open session; use ./open first")
			continue
		}
		lines, err := registry.Run(ctx, sh.current, line, sh.timeout)
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
			continue
		}
		for _, outputLine := range lines {
			fmt.Fprintln(sh.out, outputLine)
		}
	}
	return scanner.Err()
}

func (sh *shell) handleMeta(cmd *cobra.Command, line string) (quit bool, err error) {
	ctx := cmd.Context()
	registry := sh.app.registry
	fields := strings.Fields(line)

	switch fields[0] {
	case "./quit", "./exit":
		return true, nil

	case "./help":
		fmt.Fprintln(sh.out, analyzeHelp)
		return false, nil

	case "./sessions":
		keys := registry.List()
		if len(keys) == 0 {
			fmt.Fprintln(sh.out, "no open sessions")
		}
		for _, key := range keys {
			marker := " "
			if key == sh.current {
				marker = "*"
			}
			fmt.Fprintf(sh.out, "%s %s\n", marker, key)
		}
		return false, nil

	case "./open":
		if len(fields) != 3 {
			return false, fmt.Errorf("usage: ./open (dump|remote|trace) TARGET")
		}
		target, targetErr := parseTarget(fields[1], fields[2])
		if targetErr != nil {
			return false, targetErr
		}
		session, openErr := registry.GetOrCreate(ctx, target)
		if openErr != nil {
			return false, openErr
		}
		sh.current = session.ResourceKey()
		fmt.Fprintf(sh.out, "opened %s\n", sh.current)
		return false, nil

	case "./use":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: ./use KEY")
		}
		for _, key := range registry.List() {
			if key == fields[1] {
				sh.current = key
				return false, nil
			}
		}
		return false, fmt.Errorf("no session with key %q", fields[1])

	case "./close":
		key := sh.current
		if len(fields) == 2 {
			key = fields[1]
		}
		if key == "" {
			return false, fmt.Errorf("no session to close")
		}
		if !registry.Close(ctx, key) {
			return false, fmt.Errorf("no session with key %q", key)
		}
		fmt.Fprintf(sh.out, "closed %s\n", key)
		if key == sh.current {
			sh.current = ""
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q; try ./help", fields[0])
	}
}

func parseTarget(kind string, value string) (cdb.Target, error) {
	switch kind {
	case "dump":
		return cdb.NewDumpTarget(value)
	case "remote":
		return cdb.NewRemoteTarget(value)
	case "trace":
		return cdb.NewTraceTarget(value)
	default:
		return nil, fmt.Errorf("%w: unknown target kind %q", cdb.ErrInvalidTarget, kind)
	}
}
