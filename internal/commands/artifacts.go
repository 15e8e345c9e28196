package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmfrank63/mcp-windbg/internal/discovery"
)

func newDumpsCommand(a *app) *cobra.Command {
	var recursive bool

	dumpsCmd := &cobra.Command{
		Use:   "dumps [DIRECTORY]",
		Short: "Lists crash dump files (*.dmp, *.mdmp)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := artifactDir(args, a.settings.DumpDirectory)
			dumps, err := discovery.ListDumps(dir, recursive)
			if err != nil {
				return err
			}
			return printArtifacts(cmd, dumps)
		},
	}

	dumpsCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories.")
	return dumpsCmd
}

func newTracesCommand(a *app) *cobra.Command {
	var recursive bool
	var watch bool

	tracesCmd := &cobra.Command{
		Use:   "traces [DIRECTORY]",
		Short: "Lists Time Travel Debugging trace files (*.run)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := artifactDir(args, a.settings.TraceDirectory)
			traces, err := discovery.ListTraces(dir, recursive)
			if err != nil {
				return err
			}
			if err := printArtifacts(cmd, traces); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return a.watchArtifacts(cmd, dir, discovery.TracePatterns)
		},
	}

	tracesCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories.")
	tracesCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and report trace files as they appear.")
	return tracesCmd
}

func artifactDir(args []string, configured string) string {
	if len(args) == 1 {
		return args[0]
	}
	if configured != "" {
		return configured
	}
	return "."
}

func printArtifacts(cmd *cobra.Command, artifacts []discovery.Artifact) error {
	if len(artifacts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no files found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, artifact := range artifacts {
		fmt.Fprintf(w, "%s\t%d\t%s\n", artifact.Path, artifact.Size, artifact.ModTime.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// watchArtifacts streams newly appearing files until the command's context
// is cancelled.
func (a *app) watchArtifacts(cmd *cobra.Command, dir string, patterns []string) error {
	watcher, err := discovery.WatchDirectory(dir, patterns, a.log.Logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case artifact, ok := <-watcher.Artifacts():
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Path)
		}
	}
}
