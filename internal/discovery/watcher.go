package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// DirWatcher reports artifacts appearing in a directory. A trace or dump
// lands via create-then-write, so the watcher emits a path once its file
// first becomes visible and leaves completeness checks to the consumer.
type DirWatcher struct {
	fsWatcher *fsnotify.Watcher
	artifacts chan Artifact
	log       logr.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// WatchDirectory watches dir for new files matching patterns
// (e.g. DumpPatterns or TracePatterns).
func WatchDirectory(dir string, patterns []string, log logr.Logger) (*DirWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating directory watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watching %q: %w", dir, err)
	}

	w := &DirWatcher{
		fsWatcher: fsWatcher,
		artifacts: make(chan Artifact, 16),
		log:       log.WithName("dirwatcher").WithValues("dir", dir),
		done:      make(chan struct{}),
	}
	go w.run(patterns)
	return w, nil
}

// Artifacts streams newly appearing files. The channel closes when the
// watcher is closed or its event source fails.
func (w *DirWatcher) Artifacts() <-chan Artifact {
	return w.artifacts
}

func (w *DirWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *DirWatcher) run(patterns []string) {
	defer close(w.artifacts)

	seen := make(map[string]bool)
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if seen[event.Name] || !matchesAny(filepath.Base(event.Name), patterns) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			seen[event.Name] = true
			artifact := Artifact{Path: event.Name, Size: info.Size(), ModTime: info.ModTime()}
			select {
			case w.artifacts <- artifact:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "directory watcher error")
		}
	}
}
