package logsink

import (
	"fmt"
	"time"
)

// TimestampLayout is the marker timestamp format (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func stamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }

// StartMarker is written first in every run's file.
func StartMarker(unit string, at time.Time, restart bool) string {
	kind := "INITIAL"
	if restart {
		kind = "RESTART"
	}
	return fmt.Sprintf("\n=== Bot %s started at %s (%s) ===\n", unit, stamp(at), kind)
}

// ExitMarker is written when the run ends. An empty signal is shown as none.
func ExitMarker(unit string, code int, signal string, at time.Time) string {
	if signal == "" {
		signal = "none"
	}
	return fmt.Sprintf("=== Bot %s exited with code %d (signal: %s) at %s ===\n", unit, code, signal, stamp(at))
}

// ErrorMarker is written when the process could not be run or waited on.
func ErrorMarker(unit string, err error, at time.Time) string {
	return fmt.Sprintf("=== Bot %s process error at %s: %v ===\n", unit, stamp(at), err)
}
