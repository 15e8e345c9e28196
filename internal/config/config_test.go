package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// An empty directory, so no stray mcp-windbg.yaml is picked up.
	t.Chdir(t.TempDir())

	settings, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, settings.StartupTimeout)
	require.Equal(t, 30*time.Second, settings.CommandTimeout)
	require.Equal(t, time.Second, settings.GracePeriod)
	require.Equal(t, "info", settings.Verbosity)
	require.Empty(t, settings.CDBPath)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-windbg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cdb_path: C:\Debuggers\cdb.exe
symbol_path: srv*C:\symbols*https://msdl.microsoft.com/download/symbols
command_timeout: 45s
trace_directory: C:\traces
`), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, `C:\Debuggers\cdb.exe`, settings.CDBPath)
	require.Equal(t, `srv*C:\symbols*https://msdl.microsoft.com/download/symbols`, settings.SymbolPath)
	require.Equal(t, 45*time.Second, settings.CommandTimeout)
	require.Equal(t, `C:\traces`, settings.TraceDirectory)
	// Unset keys keep their defaults.
	require.Equal(t, 15*time.Second, settings.StartupTimeout)
}

func TestLoadEnvironmentOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MCP_WINDBG_CDB_PATH", `D:\tools\cdb.exe`)
	t.Setenv("MCP_WINDBG_COMMAND_TIMEOUT", "2m")

	settings, err := Load("")
	require.NoError(t, err)
	require.Equal(t, `D:\tools\cdb.exe`, settings.CDBPath)
	require.Equal(t, 2*time.Minute, settings.CommandTimeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveTimeouts(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MCP_WINDBG_STARTUP_TIMEOUT", "0s")

	_, err := Load("")
	require.ErrorContains(t, err, "startup_timeout")
}
