package visearch

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with visearch-specific helpers so operations log
// with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// LogIngest logs a single-image ingestion.
func (l *Logger) LogIngest(ctx context.Context, recordID string, cacheHit bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingest failed",
			"record_id", recordID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "ingest completed",
			"record_id", recordID,
			"cache_hit", cacheHit,
		)
	}
}

// LogBatchIngest logs a batch ingestion.
func (l *Logger) LogBatchIngest(ctx context.Context, count, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "batch ingest completed with failures",
			"total", count,
			"failed", failed,
			"success", count-failed,
		)
	} else {
		l.InfoContext(ctx, "batch ingest completed",
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, recordID string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"record_id", recordID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"record_id", recordID,
		)
	}
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, name string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"name", name,
			"records", records,
		)
	}
}
