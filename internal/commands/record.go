package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmfrank63/mcp-windbg/internal/discovery"
	"github.com/jmfrank63/mcp-windbg/internal/ttd"
	"github.com/jmfrank63/mcp-windbg/pkg/process"
)

type recordFlags struct {
	outDir string
	ring   bool
}

func (f *recordFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.outDir, "out", "o", "", "Directory to write the trace file into. Defaults to the configured trace directory.")
	fs.BoolVar(&f.ring, "ring", false, "Record into a ring buffer, keeping only the most recent activity.")
}

func (f *recordFlags) resolveOutDir(a *app) (string, error) {
	if f.outDir != "" {
		return f.outDir, nil
	}
	if a.settings.TraceDirectory != "" {
		return a.settings.TraceDirectory, nil
	}
	return "", fmt.Errorf("%w: no output directory; pass --out or configure trace_directory", ttd.ErrInvalidRecording)
}

func newRecordCommand(a *app) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Records Time Travel Debugging traces",
	}

	recordCmd.AddCommand(newRecordLaunchCommand(a))
	recordCmd.AddCommand(newRecordAttachCommand(a))
	return recordCmd
}

func newRecordLaunchCommand(a *app) *cobra.Command {
	var flags recordFlags
	var children bool

	launchCmd := &cobra.Command{
		Use:   "launch EXECUTABLE [ARGS...]",
		Short: "Launches an executable under the TTD recorder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, err := flags.resolveOutDir(a)
			if err != nil {
				return err
			}
			recorder, err := a.traceRecorder()
			if err != nil {
				return err
			}
			tracePath, err := recorder.RecordLaunch(cmd.Context(), ttd.LaunchRecording{
				OutDir:     outDir,
				Executable: args[0],
				Arguments:  args[1:],
				Ring:       flags.ring,
				Children:   children,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tracePath)
			return nil
		},
	}

	flags.register(launchCmd.Flags())
	launchCmd.Flags().BoolVar(&children, "children", false, "Record child processes too.")
	return launchCmd
}

func newRecordAttachCommand(a *app) *cobra.Command {
	var flags recordFlags

	attachCmd := &cobra.Command{
		Use:   "attach PID",
		Short: "Attaches the TTD recorder to a running process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("%w: invalid pid %q", ttd.ErrInvalidRecording, args[0])
			}
			outDir, err := flags.resolveOutDir(a)
			if err != nil {
				return err
			}
			recorder, err := a.traceRecorder()
			if err != nil {
				return err
			}
			tracePath, err := recorder.RecordAttach(cmd.Context(), ttd.AttachRecording{
				OutDir: outDir,
				PID:    int32(pid),
				Ring:   flags.ring,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tracePath)
			return nil
		},
	}

	flags.register(attachCmd.Flags())
	return attachCmd
}

func (a *app) traceRecorder() (*ttd.Recorder, error) {
	ttdPath, err := discovery.FindTTD(a.settings.TTDPath)
	if err != nil {
		return nil, err
	}
	return ttd.NewRecorder(ttdPath, process.NewOSExecutor(a.log.Logger), a.log.Logger), nil
}
