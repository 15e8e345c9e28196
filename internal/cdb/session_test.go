package cdb

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmfrank63/mcp-windbg/pkg/testutil"
)

func testSessionOptions() SessionOptions {
	return SessionOptions{
		StartupTimeout: 5 * time.Second,
		CommandTimeout: 5 * time.Second,
		GracePeriod:    300 * time.Millisecond,
	}
}

func startTestSession(t *testing.T, behaviors map[string]dbgBehavior, banner string) (*Session, *fakeDebugger) {
	t.Helper()

	dbg := newFakeDebugger(behaviors, banner)
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	t.Cleanup(cancel)

	target := DumpTarget{Path: `C:\dumps\a.dmp`}
	session, err := NewSession(ctx, target, testSessionOptions(), dbg.launch, testutil.NewLogForTesting(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close(ctx) })

	return session, dbg
}

func TestSessionVersionScenario(t *testing.T) {
	t.Parallel()

	session, _ := startTestSession(t, map[string]dbgBehavior{
		"version": {output: "Microsoft (R) Windows Debugger Version 10.0.22621.1\r\n"},
	}, "")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	lines, err := session.Execute(ctx, "version", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Microsoft (R) Windows Debugger Version 10.0.22621.1"}, lines)
}

func TestSessionStartupBannerNotLeakedIntoCommands(t *testing.T) {
	t.Parallel()

	banner := "Microsoft (R) Windows Debugger\r\nLoading Dump File [C:\\dumps\\a.dmp]\r\n"
	session, _ := startTestSession(t, map[string]dbgBehavior{
		"r": {output: "eax=00000000 ebx=00000001\r\n"},
	}, banner)

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	lines, err := session.Execute(ctx, "r", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"eax=00000000 ebx=00000001"}, lines)
}

func TestSessionMarkerNeverCaptured(t *testing.T) {
	t.Parallel()

	session, _ := startTestSession(t, map[string]dbgBehavior{
		"k": {output: "00 stack frame one\r\n01 stack frame two\r\n02 stack frame three\r\n"},
	}, "")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	lines, err := session.Execute(ctx, "k", 0)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for _, line := range lines {
		require.False(t, IsMarkerLine(line), "marker leaked into captured output: %q", line)
	}
}

// Two commands submitted back to back must never see each other's output.
func TestSessionSerialization(t *testing.T) {
	t.Parallel()

	session, _ := startTestSession(t, map[string]dbgBehavior{
		"r":  {output: "eax=00000000\r\n"},
		"kb": {output: "ChildEBP RetAddr\r\n0012f000 7c910000\r\n"},
	}, "")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var rLines, kbLines []string
	var rErr, kbErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		rLines, rErr = session.Execute(ctx, "r", 0)
	}()
	go func() {
		defer wg.Done()
		kbLines, kbErr = session.Execute(ctx, "kb", 0)
	}()
	wg.Wait()

	require.NoError(t, rErr)
	require.NoError(t, kbErr)
	require.Equal(t, []string{"eax=00000000"}, rLines)
	require.Equal(t, []string{"ChildEBP RetAddr", "0012f000 7c910000"}, kbLines)
}

func TestSessionSequentialCommands(t *testing.T) {
	t.Parallel()

	session, dbg := startTestSession(t, map[string]dbgBehavior{
		"r":  {output: "eax=00000000\r\n"},
		"kb": {output: "ChildEBP RetAddr\r\n"},
	}, "")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	_, err := session.Execute(ctx, "r", 0)
	require.NoError(t, err)
	_, err = session.Execute(ctx, "kb", 0)
	require.NoError(t, err)

	require.Equal(t, []string{"r", "kb"}, dbg.receivedCommands())
}

func TestSessionCommandTimeoutThenRecovery(t *testing.T) {
	t.Parallel()

	session, dbg := startTestSession(t, map[string]dbgBehavior{
		"hang":    {output: "partial output before the hang\r\n", withholdMarker: true},
		"version": {output: "Microsoft (R) Windows Debugger\r\n"},
	}, "")

	ctx, cancel := testutil.GetTestContext(t, 15*time.Second)
	defer cancel()

	start := time.Now()
	_, err := session.Execute(ctx, "hang", 200*time.Millisecond)
	require.ErrorIs(t, err, ErrCommandTimeout)
	require.Less(t, time.Since(start), 3*time.Second)
	require.Equal(t, SessionReady, session.State(), "session must return to ready after a command timeout")

	// The hung command's remaining output and its marker arrive late; both
	// must be discarded, not attributed to the next command.
	stale := dbg.withheldMarker()
	dbg.emitRaw("late output of the hung command\r\n" + stale + "\r\n")

	lines, err := session.Execute(ctx, "version", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Microsoft (R) Windows Debugger"}, lines)
}

func TestSessionBackToBackTimeoutsDrainInOrder(t *testing.T) {
	t.Parallel()

	session, dbg := startTestSession(t, map[string]dbgBehavior{
		"hang1":   {withholdMarker: true},
		"hang2":   {withholdMarker: true},
		"version": {output: "Microsoft (R) Windows Debugger\r\n"},
	}, "")

	ctx, cancel := testutil.GetTestContext(t, 15*time.Second)
	defer cancel()

	_, err := session.Execute(ctx, "hang1", 200*time.Millisecond)
	require.ErrorIs(t, err, ErrCommandTimeout)
	_, err = session.Execute(ctx, "hang2", 200*time.Millisecond)
	require.ErrorIs(t, err, ErrCommandTimeout)

	first := dbg.withheldMarker()
	second := dbg.withheldMarker()
	dbg.emitRaw("leftover from hang1\r\n" + first + "\r\n" + "leftover from hang2\r\n" + second + "\r\n")

	lines, err := session.Execute(ctx, "version", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Microsoft (R) Windows Debugger"}, lines)
}

func TestSessionProcessExitFailsPendingCommand(t *testing.T) {
	t.Parallel()

	session, _ := startTestSession(t, map[string]dbgBehavior{
		"crash": {terminate: true},
	}, "")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	_, err := session.Execute(ctx, "crash", 0)
	require.ErrorIs(t, err, ErrTransport)
}

func TestSessionIdleProcessExitSurfacesOnNextUse(t *testing.T) {
	t.Parallel()

	session, dbg := startTestSession(t, nil, "")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	dbg.terminate()

	require.Eventually(t, func() bool {
		return session.State() == SessionTerminated
	}, 5*time.Second, 10*time.Millisecond)

	_, err := session.Execute(ctx, "r", 0)
	require.ErrorIs(t, err, ErrTransport)
}

func TestSessionGracefulClose(t *testing.T) {
	t.Parallel()

	session, dbg := startTestSession(t, nil, "")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	require.NoError(t, session.Close(ctx))
	require.Equal(t, SessionTerminated, session.State())
	require.False(t, dbg.killed.Load(), "an idle debugger must exit from the quit input, not a kill")

	_, err := session.Execute(ctx, "r", 0)
	require.ErrorIs(t, err, ErrTransport)

	// Close is idempotent.
	require.NoError(t, session.Close(ctx))
}

func TestSessionCloseKillsUnresponsiveProcess(t *testing.T) {
	t.Parallel()

	// A remote target detaches with a control byte, never a full line, so
	// the fake's line scanner sits on it forever: the grace period elapses
	// and Close has to fall back to killing the process.
	dbg := newFakeDebugger(nil, "")

	ctx, cancel := testutil.GetTestContext(t, 15*time.Second)
	defer cancel()

	target := RemoteTarget{Connection: "tcp:Port=5005,Server=debughost"}
	session, err := NewSession(ctx, target, testSessionOptions(), dbg.launch, testutil.NewLogForTesting(t))
	require.NoError(t, err)

	require.NoError(t, session.Close(ctx))
	require.Equal(t, SessionTerminated, session.State())
	require.True(t, dbg.killed.Load(), "a process ignoring the detach input must be killed after the grace period")
}

func TestSessionStartupTimeout(t *testing.T) {
	t.Parallel()

	// A debugger that never echoes the startup sentinel.
	dbg := newFakeDebugger(nil, "Loading Dump File [C:\\dumps\\a.dmp]\r\n")
	dbg.withholdAll.Store(true)

	ctx, cancel := testutil.GetTestContext(t, 15*time.Second)
	defer cancel()

	opts := testSessionOptions()
	opts.StartupTimeout = 200 * time.Millisecond

	target := DumpTarget{Path: `C:\dumps\a.dmp`}
	_, err := NewSession(ctx, target, opts, dbg.launch, testutil.NewLogForTesting(t))
	require.ErrorIs(t, err, ErrStartupTimeout)
	require.True(t, dbg.killed.Load(), "a partially started process must be killed")
}
