package webrtcpeer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// levelTrace sits below slog.LevelDebug so pion's trace output stays hidden
// unless explicitly enabled.
const levelTrace = slog.LevelDebug - 4

type loggerFactory struct {
	log *slog.Logger
}

// NewLoggerFactory routes pion's internal logging to logger, tagging each
// record with the pion subsystem it came from.
func NewLoggerFactory(logger *slog.Logger) logging.LoggerFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return loggerFactory{log: logger}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{log: f.log.With("pion", scope)}
}

type leveledLogger struct {
	log *slog.Logger
}

func (l *leveledLogger) logf(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.log.Enabled(ctx, level) {
		return
	}
	l.log.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (l *leveledLogger) Trace(msg string) { l.logf(levelTrace, "%s", msg) }
func (l *leveledLogger) Tracef(format string, args ...interface{}) {
	l.logf(levelTrace, format, args...)
}
func (l *leveledLogger) Debug(msg string) { l.logf(slog.LevelDebug, "%s", msg) }
func (l *leveledLogger) Debugf(format string, args ...interface{}) {
	l.logf(slog.LevelDebug, format, args...)
}
func (l *leveledLogger) Info(msg string) { l.logf(slog.LevelInfo, "%s", msg) }
func (l *leveledLogger) Infof(format string, args ...interface{}) {
	l.logf(slog.LevelInfo, format, args...)
}
func (l *leveledLogger) Warn(msg string) { l.logf(slog.LevelWarn, "%s", msg) }
func (l *leveledLogger) Warnf(format string, args ...interface{}) {
	l.logf(slog.LevelWarn, format, args...)
}
func (l *leveledLogger) Error(msg string) { l.logf(slog.LevelError, "%s", msg) }
func (l *leveledLogger) Errorf(format string, args ...interface{}) {
	l.logf(slog.LevelError, format, args...)
}
