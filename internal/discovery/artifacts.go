package discovery

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DumpPatterns match Windows crash dump files.
var DumpPatterns = []string{"*.dmp", "*.mdmp"}

// TracePatterns match TTD trace files.
var TracePatterns = []string{"*.run"}

// Artifact describes a debuggable file found on disk.
type Artifact struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ListDumps returns the crash dump files under dir, sorted by path.
// With recursive set, subdirectories are descended into.
func ListDumps(dir string, recursive bool) ([]Artifact, error) {
	return listArtifacts(dir, recursive, DumpPatterns)
}

// ListTraces returns the TTD trace files under dir, sorted by path.
func ListTraces(dir string, recursive bool) ([]Artifact, error) {
	return listArtifacts(dir, recursive, TracePatterns)
}

func listArtifacts(dir string, recursive bool, patterns []string) ([]Artifact, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid directory %q: %w", dir, err)
	}

	var artifacts []Artifact
	walkErr := filepath.WalkDir(abs, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != abs {
				return iofs.SkipDir
			}
			return nil
		}
		if !matchesAny(d.Name(), patterns) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// The file disappeared between listing and stat; skip it.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		artifacts = append(artifacts, Artifact{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("listing %q: %w", dir, walkErr)
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return artifacts, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
