package logging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with the chainable contextual fields the rest
// of the engine attaches to log lines (job, block, composition identity).
type Logger struct {
	*slog.Logger
}

// New creates a Logger for the given level and format ("json" or "text").
func New(level, format string) *Logger {
	var handler slog.Handler

	logLevel := parseLevel(level)

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithFields returns a logger with additional static fields attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.With(args...)}
}

// WithJob attaches the job id to every subsequent log line.
func (l *Logger) WithJob(jobID string) *Logger {
	return &Logger{Logger: l.With("job_id", jobID)}
}

// WithBlock attaches a block path to every subsequent log line.
func (l *Logger) WithBlock(blockPath string) *Logger {
	return &Logger{Logger: l.With("block_path", blockPath)}
}

// WithContext attaches a request/trace id pulled from ctx, if present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := ctx.Value(traceIDKey{}); traceID != nil {
		return &Logger{Logger: l.With("trace_id", traceID)}
	}
	return l
}

type traceIDKey struct{}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
