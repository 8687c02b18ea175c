package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes trading activity for one symbol/interval to stdout and to a
// daily JSON-lines file under the log directory.
type Logger struct {
	symbol   string
	interval string
	logFile  *os.File
	zl       zerolog.Logger
	logPath  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
)

// Options controls where and how much the logger writes.
type Options struct {
	Dir     string // defaults to "logs"
	Level   string // debug, info, warn, error
	Console bool   // mirror to stdout in human readable form
}

// NewLogger creates a new file logger for the specified symbol and interval
func NewLogger(symbol, interval string, opts Options) (*Logger, error) {
	logDir := opts.Dir
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.log", symbol, interval, time.Now().Format("2006-01-02"))
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = file
	if opts.Console {
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
		w = zerolog.MultiLevelWriter(file, console)
	}

	l := &Logger{
		symbol:   symbol,
		interval: interval,
		logFile:  file,
		logPath:  logPath,
		zl:       newZerolog(w, opts.Level).With().Str("symbol", symbol).Str("interval", interval).Logger(),
	}

	l.zl.Info().Str("kind", "session").Msg("trading session started")
	return l, nil
}

// New builds a logger on an arbitrary writer, without a backing file.
func New(w io.Writer, level string) *Logger {
	return &Logger{zl: newZerolog(w, level)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func newZerolog(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// With returns a child logger tagged with a component name. The child shares
// the parent's file and must not be closed.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{
		symbol:   l.symbol,
		interval: l.interval,
		logPath:  l.logPath,
		zl:       l.zl.With().Str("component", component).Logger(),
	}
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LogLevelDebug:
		ev = l.zl.Debug()
	case LogLevelWarning:
		ev = l.zl.Warn()
	case LogLevelError:
		ev = l.zl.Error()
	case LogLevelTrade:
		ev = l.zl.Info().Str("kind", "trade")
	case LogLevelStatus:
		ev = l.zl.Info().Str("kind", "status")
	default:
		ev = l.zl.Info()
	}
	ev.Msgf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.Log(LogLevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogError logs an error with context
func (l *Logger) LogError(context string, err error) {
	if l == nil {
		return
	}
	l.zl.Error().Err(err).Str("context", context).Msg(context + " failed")
}

// LogWarning logs a warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	if l == nil {
		return
	}
	l.zl.Warn().Str("context", context).Msgf(message, args...)
}

// Close flushes the session footer and closes the log file
func (l *Logger) Close() error {
	if l == nil || l.logFile == nil {
		return nil
	}
	l.zl.Info().Str("kind", "session").Msg("trading session ended")
	return l.logFile.Close()
}

// GetLogPath returns the path of the backing log file, if any
func (l *Logger) GetLogPath() string {
	return l.logPath
}
