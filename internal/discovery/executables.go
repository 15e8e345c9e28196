package discovery

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jmfrank63/mcp-windbg/pkg/osutil"
)

const (
	// CDBPathEnv overrides the cdb executable location.
	CDBPathEnv = "CDB_PATH"
	// TTDPathEnv overrides the TTD recorder executable location.
	TTDPathEnv = "TTD_PATH"
)

// ErrExecutableNotFound is returned when a debugger executable cannot be
// located in any of the searched locations.
var ErrExecutableNotFound = errors.New("executable not found")

// windowsKitsDebuggerDirs are the standard Debugging Tools for Windows
// install locations, most common architecture first.
var windowsKitsDebuggerDirs = []string{
	`C:\Program Files (x86)\Windows Kits\10\Debuggers\x64`,
	`C:\Program Files (x86)\Windows Kits\10\Debuggers\x86`,
	`C:\Program Files (x86)\Windows Kits\10\Debuggers\arm64`,
	`C:\Program Files\Windows Kits\10\Debuggers\x64`,
}

// ttdInstallDirs are the standard TTD standalone install locations.
var ttdInstallDirs = []string{
	`C:\Program Files\TTD`,
	`C:\Program Files (x86)\TTD`,
}

// FindCDB locates the cdb executable. The configured path wins when set;
// otherwise the CDB_PATH environment variable, the system PATH, and the
// standard Windows Kits install locations are probed in that order.
func FindCDB(configuredPath string) (string, error) {
	return findExecutable(configuredPath, CDBPathEnv, "cdb", windowsKitsDebuggerDirs)
}

// FindTTD locates the TTD recorder executable using the same search order
// as FindCDB, with TTD_PATH and the TTD install locations.
func FindTTD(configuredPath string) (string, error) {
	return findExecutable(configuredPath, TTDPathEnv, "TTD", ttdInstallDirs)
}

func findExecutable(configuredPath string, envVar string, name string, wellKnownDirs []string) (string, error) {
	exeName := name
	if osutil.IsWindows() {
		exeName += ".exe"
	}

	var searched []string

	for _, candidate := range []string{configuredPath, os.Getenv(envVar)} {
		if candidate == "" {
			continue
		}
		// An explicit path may point at the executable itself or at its
		// containing directory.
		if resolved, ok := probeExecutable(candidate, exeName); ok {
			return resolved, nil
		}
		searched = append(searched, candidate)
	}

	if resolved, err := exec.LookPath(exeName); err == nil {
		return resolved, nil
	}
	searched = append(searched, "$PATH")

	for _, dir := range wellKnownDirs {
		candidate := filepath.Join(dir, exeName)
		if isRegularFile(candidate) {
			return candidate, nil
		}
		searched = append(searched, candidate)
	}

	return "", fmt.Errorf("%w: %s (searched: %s)", ErrExecutableNotFound, exeName, strings.Join(searched, ", "))
}

func probeExecutable(path string, exeName string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		candidate := filepath.Join(path, exeName)
		if isRegularFile(candidate) {
			return candidate, true
		}
		return "", false
	}
	return path, true
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
