package lsh

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with field names shared by every stage of the
// pipeline (feature, canopies, merges, ...).
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to w.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// resolveLogger picks the logger a component should use. A nil logger is
// silent unless verbose is set, which mirrors the "verbose" switch the
// codecs accept.
func resolveLogger(l *Logger, verbose bool) *Logger {
	if l != nil {
		return l
	}
	if verbose {
		return NewTextLogger(os.Stderr, slog.LevelDebug)
	}
	return NoopLogger()
}

// WithFeature adds a feature name field to the logger.
func (l *Logger) WithFeature(feature string) *Logger {
	return &Logger{
		Logger: l.Logger.With("feature", feature),
	}
}

// WithComponent tags every record with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogEncode logs the outcome of encoding a feature source.
func (l *Logger) LogEncode(ctx context.Context, keys, features int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "encode failed",
			"keys", keys,
			"features", features,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "encode completed",
		"keys", keys,
		"features", features,
		"elapsed", elapsed,
	)
}

// LogIndexBuild logs the construction of a flat or nested band index.
func (l *Logger) LogIndexBuild(ctx context.Context, kind, feature string, levels, buckets int) {
	l.DebugContext(ctx, "index built",
		"kind", kind,
		"feature", feature,
		"levels", levels,
		"buckets", buckets,
	)
}

// LogCanopies logs the result of canopy construction.
func (l *Logger) LogCanopies(ctx context.Context, feature string, keys, canopies int, elapsed time.Duration) {
	l.InfoContext(ctx, "canopies built",
		"feature", feature,
		"keys", keys,
		"canopies", canopies,
		"elapsed", elapsed,
	)
}

// LogSparseDistances logs how many distances were evaluated against the
// size of the full matrix.
func (l *Logger) LogSparseDistances(ctx context.Context, stats SparseDistanceStats) {
	l.InfoContext(ctx, "sparse distances computed",
		"computed", stats.Computed,
		"full_matrix", stats.FullMatrix,
		"percent", 100*stats.Ratio(),
	)
}

// LogMerge logs a single agglomeration step.
func (l *Logger) LogMerge(ctx context.Context, ev MergeEvent) {
	l.DebugContext(ctx, "clusters merged",
		"step", ev.Step,
		"into", ev.Into,
		"from", ev.From,
		"distance", ev.Distance,
	)
}

// LogClustering logs the end of a clustering run.
func (l *Logger) LogClustering(ctx context.Context, merges, clusters int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "clustering failed",
			"merges", merges,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "clustering completed",
		"merges", merges,
		"clusters", clusters,
	)
}
