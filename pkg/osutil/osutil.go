package osutil

import (
	"bytes"
	"runtime"
)

var (
	lf   = []byte("\n")
	crlf = []byte("\r\n")
)

func LF() []byte {
	return lf
}

func CRLF() []byte {
	return crlf
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// WithNewline returns a copy of b with a trailing newline appended.
// The original slice is never modified.
func WithNewline(b []byte) []byte {
	return bytes.Join([][]byte{b, lf}, nil)
}
