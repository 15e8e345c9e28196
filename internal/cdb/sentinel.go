package cdb

import (
	"strings"

	"github.com/jmfrank63/mcp-windbg/pkg/randdata"
)

// The debugger offers no structured acknowledgement that a command has
// finished; its input is consumed strictly in order, so a ".echo" meta-command
// appended after a command is echoed only once everything queued ahead of it
// has completed. Each command submission gets its own random token, matched
// by exact equality, so legitimate output that happens to contain an old
// marker (memory contents, a scrollback replay, a marker arriving after its
// command already timed out) can never complete the wrong command.

const (
	markerPrefix = "mcpwindbg-"
	nonceLength  = 12
)

// Marker is the per-command completion sentinel.
type Marker struct {
	token string
}

func NewMarker() (Marker, error) {
	nonce, err := randdata.MakeRandomString(nonceLength)
	if err != nil {
		return Marker{}, err
	}
	return Marker{token: markerPrefix + string(nonce)}, nil
}

func (m Marker) String() string {
	return m.token
}

// EchoCommand returns the debugger meta-command that makes the target emit
// the marker once all previously queued input has been processed.
func (m Marker) EchoCommand() string {
	return ".echo " + m.token
}

// Matches reports whether a completed output line is this marker.
func (m Marker) Matches(line string) bool {
	return line == m.token
}

// IsMarkerLine reports whether a line has the shape of some sentinel marker,
// current or stale. Stale markers (from timed-out commands) are discarded
// rather than captured as command output.
func IsMarkerLine(line string) bool {
	return strings.HasPrefix(line, markerPrefix) && len(line) == len(markerPrefix)+nonceLength
}
