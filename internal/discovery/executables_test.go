package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFakeExecutable(t *testing.T, dir string, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestFindCDBConfiguredPath(t *testing.T) {
	path := writeFakeExecutable(t, t.TempDir(), "cdb")

	found, err := FindCDB(path)
	require.NoError(t, err)
	require.Equal(t, path, found)
}

func TestFindCDBConfiguredDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeFakeExecutable(t, dir, "cdb")

	found, err := FindCDB(dir)
	require.NoError(t, err)
	require.Equal(t, path, found)
}

func TestFindCDBEnvironmentVariable(t *testing.T) {
	path := writeFakeExecutable(t, t.TempDir(), "cdb")
	t.Setenv(CDBPathEnv, path)

	found, err := FindCDB("")
	require.NoError(t, err)
	require.Equal(t, path, found)
}

func TestFindCDBConfiguredPathWinsOverEnvironment(t *testing.T) {
	configured := writeFakeExecutable(t, t.TempDir(), "cdb")
	fromEnv := writeFakeExecutable(t, t.TempDir(), "cdb")
	t.Setenv(CDBPathEnv, fromEnv)

	found, err := FindCDB(configured)
	require.NoError(t, err)
	require.Equal(t, configured, found)
}

func TestFindCDBNotFound(t *testing.T) {
	t.Setenv(CDBPathEnv, "")
	// An empty PATH defeats exec.LookPath without depending on the host.
	t.Setenv("PATH", t.TempDir())

	missing := filepath.Join(t.TempDir(), "nonexistent")
	_, err := FindCDB(missing)
	require.ErrorIs(t, err, ErrExecutableNotFound)
	require.ErrorContains(t, err, missing, "the error must name the searched locations")
}

func TestFindTTDEnvironmentVariable(t *testing.T) {
	path := writeFakeExecutable(t, t.TempDir(), "TTD")
	t.Setenv(TTDPathEnv, path)

	found, err := FindTTD("")
	require.NoError(t, err)
	require.Equal(t, path, found)
}
