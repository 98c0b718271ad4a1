package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is one of Vesta's six ordered log severities, from most to least
// severe: severe > warning > info > fine > verbose > debug. Levels map
// onto log/slog levels so any slog handler can consume them.
type Level = slog.Level

const (
	// LevelSevere marks failures that need operator attention.
	LevelSevere Level = slog.LevelError

	// LevelWarning marks recoverable anomalies.
	LevelWarning Level = slog.LevelWarn

	// LevelInfo marks normal operational events.
	LevelInfo Level = slog.LevelInfo

	// LevelFine marks per-request lifecycle events.
	LevelFine Level = slog.Level(-2)

	// LevelVerbose marks chatty internals (chain composition, proxy
	// target selection).
	LevelVerbose Level = slog.LevelDebug

	// LevelDebug marks the most detailed diagnostics.
	LevelDebug Level = slog.Level(-8)
)

// levelNames maps the custom levels to their display names so handlers
// print "FINE"/"VERBOSE" instead of offsets from the stock levels.
var levelNames = map[slog.Level]string{
	LevelSevere:  "SEVERE",
	LevelWarning: "WARNING",
	LevelInfo:    "INFO",
	LevelFine:    "FINE",
	LevelVerbose: "VERBOSE",
	LevelDebug:   "DEBUG",
}

// ParseLevel parses a severity name (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "severe", "error":
		return LevelSevere, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "info", "":
		return LevelInfo, nil
	case "fine":
		return LevelFine, nil
	case "verbose":
		return LevelVerbose, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// replaceLevelAttr renames the level attribute for the custom severities.
func replaceLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	if name, ok := levelNames[level]; ok {
		a.Value = slog.StringValue(name)
	}
	return a
}
