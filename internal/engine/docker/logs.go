package docker

import (
	"strings"

	"jobkernel/internal/engine"
)

// lineCollector turns written chunks into log entries for one stream.
// stdcopy writes frames in arrival order, so two collectors sharing entries
// keep stdout and stderr interleaved.
type lineCollector struct {
	stream  string
	entries *[]engine.LogEntry
}

func (c *lineCollector) Write(p []byte) (int, error) {
	for _, line := range splitLines(string(p)) {
		*c.entries = append(*c.entries, engine.LogEntry{Stream: c.stream, Line: line})
	}
	return len(p), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
