package io

import "strings"

// LineFramer turns an arbitrarily chunked byte stream into complete lines.
// A line is terminated by '\n' (optionally preceded by '\r'); trailing
// whitespace is trimmed from the line content. Bytes after the last newline
// of a chunk are buffered and prepended to the next chunk, so lines split
// across chunk boundaries are reassembled exactly once.
//
// LineFramer is not goroutine-safe; it is owned by a single reader.
type LineFramer struct {
	partial []byte
}

func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Push consumes one chunk and returns the lines completed by it, in order.
// A chunk with no newline produces no lines; its content stays buffered.
func (f *LineFramer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	data := chunk
	if len(f.partial) > 0 {
		data = append(f.partial, chunk...)
	}

	var lines []string
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			lines = append(lines, trimLine(data[start:i]))
			start = i + 1
		}
	}

	if start < len(data) {
		// Copy the tail so we never alias the caller's chunk buffer.
		f.partial = append(f.partial[:0:0], data[start:]...)
	} else {
		f.partial = nil
	}

	return lines
}

// Pending returns the number of buffered bytes of the incomplete trailing line.
func (f *LineFramer) Pending() int {
	return len(f.partial)
}

// Reset discards any buffered partial line. Used when the stream ends:
// an unterminated remainder cannot belong to a completed command and is
// dropped rather than force-flushed.
func (f *LineFramer) Reset() {
	f.partial = nil
}

func trimLine(b []byte) string {
	return strings.TrimRight(string(b), " \t\r")
}
