package ttd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRecording is returned when a recording request fails validation.
var ErrInvalidRecording = errors.New("invalid trace recording request")

// LaunchRecording describes recording a TTD trace of a newly launched
// executable.
type LaunchRecording struct {
	// OutDir is the directory the recorder writes the trace file into.
	OutDir string

	// Executable is the program to launch under the recorder.
	Executable string

	// Arguments are passed to the launched executable.
	Arguments []string

	// Ring enables ring-buffer mode: the trace file holds only the most
	// recent activity instead of growing without bound.
	Ring bool

	// Children records child processes too.
	Children bool
}

// Args returns the TTD.exe argument vector for the launch recording.
func (r LaunchRecording) Args() ([]string, error) {
	if strings.TrimSpace(r.OutDir) == "" {
		return nil, fmt.Errorf("%w: output directory is required", ErrInvalidRecording)
	}
	if strings.TrimSpace(r.Executable) == "" {
		return nil, fmt.Errorf("%w: executable is required", ErrInvalidRecording)
	}

	args := []string{"-out", r.OutDir}
	if r.Ring {
		args = append(args, "-ring")
	}
	if r.Children {
		args = append(args, "-children")
	}
	args = append(args, r.Executable)
	args = append(args, r.Arguments...)
	return args, nil
}

// AttachRecording describes recording a TTD trace of an already running
// process.
type AttachRecording struct {
	// OutDir is the directory the recorder writes the trace file into.
	OutDir string

	// PID is the process to attach to.
	PID int32

	// Ring enables ring-buffer mode.
	Ring bool
}

// Args returns the TTD.exe argument vector for the attach recording.
func (r AttachRecording) Args() ([]string, error) {
	if strings.TrimSpace(r.OutDir) == "" {
		return nil, fmt.Errorf("%w: output directory is required", ErrInvalidRecording)
	}
	if r.PID <= 0 {
		return nil, fmt.Errorf("%w: pid %d", ErrInvalidRecording, r.PID)
	}

	args := []string{"-out", r.OutDir}
	if r.Ring {
		args = append(args, "-ring")
	}
	args = append(args, "-attach", strconv.Itoa(int(r.PID)))
	return args, nil
}
