// Package logging provides Vesta's leveled structured logger: a log/slog
// wrapper with six ordered severities, a runtime-settable minimum level,
// and redaction of credential-bearing fields.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogFormat is the output format for logs.
type LogFormat string

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON LogFormat = "json"
	// FormatText outputs logs in plain text format.
	FormatText LogFormat = "text"
)

// Config contains configuration for the Logger.
type Config struct {
	// Level is the minimum severity ("severe", "warning", "info", "fine",
	// "verbose", "debug"). Defaults to "info".
	Level string

	// Format is the output format ("json", "text"). Defaults to "json".
	Format LogFormat

	// AddSource includes file and line number in log records.
	AddSource bool

	// Redact enables redaction of credential-bearing attribute values.
	Redact bool

	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer
}

// Logger is a leveled structured logger. The minimum severity is held in
// a LevelVar, so it can be raised or lowered at runtime without
// rebuilding the logger.
type Logger struct {
	slog     *slog.Logger
	minLevel *slog.LevelVar
	redactor *Redactor
}

// New creates a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	minLevel := new(slog.LevelVar)
	minLevel.Set(level)

	opts := &slog.HandlerOptions{
		Level:       minLevel,
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceLevelAttr,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	var redactor *Redactor
	if cfg.Redact {
		redactor = NewRedactor()
	}

	return &Logger{
		slog:     slog.New(handler),
		minLevel: minLevel,
		redactor: redactor,
	}, nil
}

// SetMinLevel changes the minimum severity at runtime. Records below the
// minimum are dropped by the handler.
func (l *Logger) SetMinLevel(level Level) {
	l.minLevel.Set(level)
}

// MinLevel returns the current minimum severity.
func (l *Logger) MinLevel() Level {
	return l.minLevel.Level()
}

// Log emits a record at an arbitrary severity.
func (l *Logger) Log(level Level, msg string, args ...any) {
	l.log(context.Background(), level, msg, args...)
}

// Severe logs a failure needing operator attention.
func (l *Logger) Severe(msg string, args ...any) {
	l.log(context.Background(), LevelSevere, msg, args...)
}

// Warning logs a recoverable anomaly.
func (l *Logger) Warning(msg string, args ...any) {
	l.log(context.Background(), LevelWarning, msg, args...)
}

// Info logs a normal operational event.
func (l *Logger) Info(msg string, args ...any) {
	l.log(context.Background(), LevelInfo, msg, args...)
}

// Fine logs a per-request lifecycle event.
func (l *Logger) Fine(msg string, args ...any) {
	l.log(context.Background(), LevelFine, msg, args...)
}

// Verbose logs chatty internals.
func (l *Logger) Verbose(msg string, args ...any) {
	l.log(context.Background(), LevelVerbose, msg, args...)
}

// Debug logs detailed diagnostics.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(context.Background(), LevelDebug, msg, args...)
}

// LogContext emits a record with fields extracted from ctx (request id,
// worker identity) prepended.
func (l *Logger) LogContext(ctx context.Context, level Level, msg string, args ...any) {
	l.log(ctx, level, msg, append(extractContextFields(ctx), args...)...)
}

// With returns a logger that includes args in every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(l.redactArgs(args)...),
		minLevel: l.minLevel,
		redactor: l.redactor,
	}
}

func (l *Logger) log(ctx context.Context, level Level, msg string, args ...any) {
	if !l.slog.Enabled(ctx, level) {
		return
	}
	l.slog.Log(ctx, level, msg, l.redactArgs(args)...)
}

func (l *Logger) redactArgs(args []any) []any {
	if l.redactor == nil {
		return args
	}
	out := make([]any, len(args))
	copy(out, args)
	// Args are alternating key/value pairs; only string values are
	// candidates for redaction.
	for i := 1; i < len(out); i += 2 {
		if s, ok := out[i].(string); ok {
			out[i] = l.redactor.Redact(s)
		}
	}
	return out
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
	defaultMu     sync.RWMutex
)

// Default returns the process-wide default logger, creating a JSON
// stdout logger at info level on first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		l, _ := New(Config{})
		defaultMu.Lock()
		defaultLogger = l
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide default logger. Safe to call only
// during setup.
func SetDefault(l *Logger) {
	defaultOnce.Do(func() {})
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}
