package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "mcp-windbg"
	configType = "yaml"

	envPrefix = "MCP_WINDBG"

	cdbPathKey        = "cdb_path"
	ttdPathKey        = "ttd_path"
	symbolPathKey     = "symbol_path"
	startupTimeoutKey = "startup_timeout"
	commandTimeoutKey = "command_timeout"
	gracePeriodKey    = "grace_period"
	dumpDirectoryKey  = "dump_directory"
	traceDirectoryKey = "trace_directory"
	verbosityKey      = "verbosity"
)

// Settings holds the resolved configuration for the debugger service.
type Settings struct {
	// CDBPath is an explicit cdb executable path; empty means auto-discover.
	CDBPath string

	// TTDPath is an explicit TTD recorder path; empty means auto-discover.
	TTDPath string

	// SymbolPath is passed to cdb via -y when set.
	SymbolPath string

	// StartupTimeout bounds the debugger startup handshake.
	StartupTimeout time.Duration

	// CommandTimeout is the default per-command deadline.
	CommandTimeout time.Duration

	// GracePeriod bounds graceful shutdown before the process is killed.
	GracePeriod time.Duration

	// DumpDirectory is the default location for dump enumeration.
	DumpDirectory string

	// TraceDirectory is the default location for trace enumeration and
	// recording output.
	TraceDirectory string

	// Verbosity is the default log verbosity (overridable via -v).
	Verbosity string
}

// Load resolves settings from an optional config file plus MCP_WINDBG_*
// environment variables. A non-empty configFile must exist and parse; with
// an empty configFile, "mcp-windbg.yaml" is searched in the working
// directory and the user config directory, and its absence is fine.
func Load(configFile string) (Settings, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(startupTimeoutKey, 15*time.Second)
	v.SetDefault(commandTimeoutKey, 30*time.Second)
	v.SetDefault(gracePeriodKey, time.Second)
	v.SetDefault(verbosityKey, "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("reading config file %q: %w", configFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mcp-windbg")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Settings{}, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	settings := Settings{
		CDBPath:        v.GetString(cdbPathKey),
		TTDPath:        v.GetString(ttdPathKey),
		SymbolPath:     v.GetString(symbolPathKey),
		StartupTimeout: v.GetDuration(startupTimeoutKey),
		CommandTimeout: v.GetDuration(commandTimeoutKey),
		GracePeriod:    v.GetDuration(gracePeriodKey),
		DumpDirectory:  v.GetString(dumpDirectoryKey),
		TraceDirectory: v.GetString(traceDirectoryKey),
		Verbosity:      v.GetString(verbosityKey),
	}
	if err := settings.validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s Settings) validate() error {
	if s.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be positive, got %s", s.StartupTimeout)
	}
	if s.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %s", s.CommandTimeout)
	}
	if s.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative, got %s", s.GracePeriod)
	}
	return nil
}
