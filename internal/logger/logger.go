package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Observability event names emitted with Event.
const (
	EventRuleConflict    = "RuleConflict"
	EventSyncAnomaly     = "SyncAnomaly"
	EventInvalidGeometry = "InvalidGeometry"
	EventZoneOverlap     = "ZoneOverlap"
	EventPromotion       = "Promotion"
)

// Logger wraps zerolog.Logger with a fields-map API.
type Logger struct {
	zlog zerolog.Logger
}

// New creates a Logger for the given environment. Development gets coloured
// console output at debug level; everything else gets JSON at info level.
func New(env string) *Logger {
	return NewWithLevel(env, "")
}

// NewWithLevel is New with an explicit level name (debug, info, warn, error).
// An empty or unknown level keeps the environment default.
func NewWithLevel(env, level string) *Logger {
	var output io.Writer = os.Stdout
	if env == "development" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return newLogger(output, env, level)
}

// NewWithWriter writes JSON to w. Used by tests that inspect output.
func NewWithWriter(w io.Writer, level string) *Logger {
	return newLogger(w, "", level)
}

func newLogger(w io.Writer, env, level string) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl := zerolog.InfoLevel
	if env == "development" {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}

	return &Logger{zlog: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

func emit(e *zerolog.Event, msg string, fields map[string]interface{}) {
	for key, value := range fields {
		e = e.Interface(key, value)
	}
	e.Msg(msg)
}

// Debug logs a debug message with optional fields.
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	emit(l.zlog.Debug(), msg, fields)
}

// Info logs an info message with optional fields.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	emit(l.zlog.Info(), msg, fields)
}

// Warn logs a warning message with optional fields.
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	emit(l.zlog.Warn(), msg, fields)
}

// Error logs an error message with an error and optional fields.
func (l *Logger) Error(msg string, err error, fields map[string]interface{}) {
	emit(l.zlog.Error().Err(err), msg, fields)
}

// Fatal logs a fatal message and exits the application.
func (l *Logger) Fatal(msg string, err error, fields map[string]interface{}) {
	emit(l.zlog.Fatal().Err(err), msg, fields)
}

// Event emits a named observability event at warn level. Events are
// non-fatal conditions operators need to see: rule conflicts, sync
// anomalies, rejected geometry.
func (l *Logger) Event(name string, fields map[string]interface{}) {
	emit(l.zlog.Warn().Str("event", name), name, fields)
}

// With creates a child logger with additional context fields.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithRequestID creates a child logger with a request ID field.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("request_id", requestID).Logger()}
}

// WithComponent creates a child logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// GetZerolog returns the underlying zerolog.Logger for advanced usage.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}
