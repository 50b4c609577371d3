// Package tracelog is the ambient logging facility shared across Trace's
// subsystems: a thin wrapper over the standard logger with a subsystem
// tag and a debug gate, matching the teacher's logging texture.
package tracelog

import (
	"log"
	"os"
	"strings"
)

var debugEnabled = os.Getenv("TRACE_DEBUG") == "true"

// Info logs an informational message (always shown).
func Info(subsystem, format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}

// Debug logs a debug message (only shown if TRACE_DEBUG=true).
func Debug(subsystem, format string, args ...any) {
	if debugEnabled {
		log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
	}
}

// Warn logs a warning (always shown, prefixed distinctly from Info).
func Warn(subsystem, format string, args ...any) {
	log.Printf("[%s] WARN: "+format, append([]any{subsystem}, args...)...)
}

// Truncate truncates a string to maxLen and adds an ellipsis, collapsing
// newlines so the result is safe for one-line logs.
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
