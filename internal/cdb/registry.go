package cdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/jmfrank63/mcp-windbg/pkg/concurrency"
	"github.com/jmfrank63/mcp-windbg/pkg/process"
	"github.com/jmfrank63/mcp-windbg/pkg/resiliency"
)

const shutdownAllPerSessionTimeout = 5 * time.Second

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Defaults are the session options applied to every session the registry
	// constructs.
	Defaults SessionOptions

	// Executor is the process executor for debugger processes.
	// If nil, a new OS executor is created.
	Executor process.Executor

	// Launch overrides how debugger transports are produced.
	// If nil, debugger processes are spawned via the executor.
	Launch LaunchFunc

	// Logger for registry and session operations.
	Logger logr.Logger
}

type sessionResult struct {
	session *Session
	err     error
}

type registryEntry struct {
	job *concurrency.OneTimeJob[sessionResult]
}

// Registry maps a resource key to at most one live Session. It is the single
// owner of session lifecycles: sessions enter the map only after a successful
// startup handshake and leave it on explicit close, on transport failure, or
// at shutdown. Construction is serialized per key, so concurrent calls for
// the same unregistered key spawn exactly one debugger process.
type Registry struct {
	config RegistryConfig
	launch LaunchFunc
	log    logr.Logger

	mu      sync.Mutex
	entries map[string]*registryEntry
}

func NewRegistry(config RegistryConfig) *Registry {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	launch := config.Launch
	if launch == nil {
		executor := config.Executor
		if executor == nil {
			executor = process.NewOSExecutor(log)
		}
		launch = NewProcessLaunch(executor)
	}

	return &Registry{
		config:  config,
		launch:  launch,
		log:     log.WithName("registry"),
		entries: make(map[string]*registryEntry),
	}
}

// GetOrCreate returns the live session for the target's resource key,
// constructing one if none exists. Callers that lose the per-key
// construction race wait for the winner's result instead of spawning a
// second debugger process. A failed construction removes the entry so the
// key can be retried.
func (r *Registry) GetOrCreate(ctx context.Context, target Target) (*Session, error) {
	key := target.Key()

	r.mu.Lock()
	entry, found := r.entries[key]
	if !found {
		entry = &registryEntry{job: concurrency.NewOneTimeJob[sessionResult]()}
		r.entries[key] = entry
	}
	r.mu.Unlock()

	if entry.job.TryTake() {
		session, err := NewSession(ctx, target, r.config.Defaults, r.launch, r.log)
		if err != nil {
			r.removeEntry(key, entry)
			entry.job.Complete(sessionResult{err: err})
			return nil, err
		}
		entry.job.Complete(sessionResult{session: session})
		r.log.V(1).Info("registered session", "key", key, "sessionID", session.ID())
		return session, nil
	}

	select {
	case <-entry.job.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res := entry.job.WaitResult()
	return res.session, res.err
}

// Run executes a command against an already-open session. Unknown keys fail
// with ErrUnknownSession; a session whose debugger died while idle fails
// with ErrTransport and is removed from the registry. A timeoutOverride of
// zero uses the session default.
func (r *Registry) Run(ctx context.Context, key string, command string, timeoutOverride time.Duration) ([]string, error) {
	entry, session, err := r.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	if session.State() == SessionTerminated {
		r.reap(ctx, key, entry, session)
		return nil, fmt.Errorf("%w: debugger for %s exited", ErrTransport, key)
	}

	lines, err := session.Execute(ctx, command, timeoutOverride)
	if errors.Is(err, ErrTransport) {
		r.reap(ctx, key, entry, session)
	}
	return lines, err
}

// Close shuts down the session for the key and removes it from the registry.
// Returns false, with no side effects, when the key is unknown.
func (r *Registry) Close(ctx context.Context, key string) bool {
	r.mu.Lock()
	entry, found := r.entries[key]
	if found {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !found {
		return false
	}

	// If construction is still in progress, wait for it before closing.
	res := entry.job.WaitResult()
	if res.session != nil {
		if err := res.session.Close(ctx); err != nil {
			r.log.Error(err, "error closing session", "key", key)
		}
	}
	return true
}

// List returns the currently open resource keys, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ShutdownAll closes every open session, best-effort. Errors and sessions
// that do not shut down within a bounded time are logged, not returned; this
// runs when the host process is exiting.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	entries := make(map[string]*registryEntry, len(r.entries))
	for key, entry := range r.entries {
		entries[key] = entry
	}
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for key, entry := range entries {
		closed := resiliency.RunWithTimeout(func() {
			res := entry.job.WaitResult()
			if res.session != nil {
				if err := res.session.Close(ctx); err != nil {
					r.log.Error(err, "error closing session during shutdown", "key", key)
				}
			}
		}, shutdownAllPerSessionTimeout)
		if !closed {
			r.log.Info("session did not shut down in time", "key", key)
		}
	}
}

func (r *Registry) lookup(ctx context.Context, key string) (*registryEntry, *Session, error) {
	r.mu.Lock()
	entry, found := r.entries[key]
	r.mu.Unlock()

	if !found {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}

	select {
	case <-entry.job.Done():
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	res := entry.job.WaitResult()
	if res.err != nil {
		// The entry was already removed by the constructing goroutine.
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}
	return entry, res.session, nil
}

// reap removes a dead session's entry and releases its process resources. The
// removal is entry-scoped: if the key was closed and reopened in the meantime,
// the replacement entry stays registered.
func (r *Registry) reap(ctx context.Context, key string, entry *registryEntry, session *Session) {
	r.removeEntry(key, entry)
	_ = session.Close(ctx)
	r.log.V(1).Info("removed dead session", "key", key)
}

func (r *Registry) removeEntry(key string, entry *registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, found := r.entries[key]; found && current == entry {
		delete(r.entries, key)
	}
}
