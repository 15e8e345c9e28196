package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/jmfrank63/mcp-windbg/internal/cdb"
	"github.com/jmfrank63/mcp-windbg/internal/config"
	"github.com/jmfrank63/mcp-windbg/internal/discovery"
	"github.com/jmfrank63/mcp-windbg/pkg/logger"
)

// app carries the state shared by the command tree: the logger, the settings
// resolved after flag parsing, and the session registry (constructed
// on demand by commands that drive a debugger).
type app struct {
	log      *logger.Logger
	settings config.Settings

	configFile string
	registry   *cdb.Registry
}

func NewRootCommand(log *logger.Logger) (*cobra.Command, error) {
	a := &app{log: log}

	rootCmd := &cobra.Command{
		Use:   "mcp-windbg",
		Short: "Drives cdb debugging sessions over crash dumps, remote targets, and TTD traces",
		Long: `mcp-windbg manages interactive cdb (WinDbg) sessions as a request/response
service: it opens crash dumps, live remote targets, and Time Travel Debugging
traces, executes debugger commands against them, and returns the completed
output of each command.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to a configuration file. By default mcp-windbg.yaml is searched in the working directory and the user config directory.")
	log.AddLevelFlag(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newAnalyzeCommand(a))
	rootCmd.AddCommand(newDumpsCommand(a))
	rootCmd.AddCommand(newTracesCommand(a))
	rootCmd.AddCommand(newRecordCommand(a))

	if cmd, err := newVersionCommand(log.Logger); err != nil {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	return rootCmd, nil
}

// setup loads settings once flags are parsed. The verbosity flag wins over
// the configured default.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.settings = settings

	if !cmd.Flags().Changed(logger.VerbosityFlagName) && settings.Verbosity != "" {
		level, err := logger.StringToLevel(settings.Verbosity, zapcore.InfoLevel)
		if err != nil {
			return fmt.Errorf("invalid verbosity %q: %w", settings.Verbosity, err)
		}
		a.log.SetLevel(level)
	}

	return nil
}

// sessionRegistry lazily constructs the registry, resolving the debugger
// executable first so a missing cdb fails fast with the searched locations.
func (a *app) sessionRegistry() (*cdb.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}

	cdbPath, err := discovery.FindCDB(a.settings.CDBPath)
	if err != nil {
		return nil, err
	}
	a.log.V(1).Info("using debugger executable", "path", cdbPath)

	a.registry = cdb.NewRegistry(cdb.RegistryConfig{
		Defaults: cdb.SessionOptions{
			DebuggerPath:   cdbPath,
			SymbolPath:     a.settings.SymbolPath,
			StartupTimeout: a.settings.StartupTimeout,
			CommandTimeout: a.settings.CommandTimeout,
			GracePeriod:    a.settings.GracePeriod,
		},
		Logger: a.log.Logger,
	})
	return a.registry, nil
}
