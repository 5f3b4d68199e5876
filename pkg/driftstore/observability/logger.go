// Package observability provides structured logging, metrics, and tracing
// for the driftstore durability core.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds session context to a logger.
// Returns a new logger with plan_id and step_index fields.
func EnrichLogger(logger *slog.Logger, planID string, stepIndex int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("plan_id", planID),
		slog.Int("step_index", stepIndex),
	)
}

// LogSave logs a completed document save.
func LogSave(logger *slog.Logger, key string, sizeBytes int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("document saved",
		slog.String("key", key),
		slog.Int("size_bytes", sizeBytes),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSaveError logs a failed document save. The primary is untouched.
func LogSaveError(logger *slog.Logger, key string, err error) {
	if logger == nil {
		return
	}
	logger.Error("document save failed",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// LogCorruption logs a primary that failed its integrity check.
func LogCorruption(logger *slog.Logger, key, path string) {
	if logger == nil {
		return
	}
	logger.Warn("primary failed integrity check",
		slog.String("key", key),
		slog.String("path", path),
	)
}

// LogBackupRecovery logs a load served from the backup slot.
func LogBackupRecovery(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Warn("recovered from backup",
		slog.String("key", key),
	)
}

// LogUnrecoverable logs a key whose primary and backup both failed.
func LogUnrecoverable(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Error("document unrecoverable",
		slog.String("key", key),
	)
}

// LogSweep logs the removal of orphaned temp files.
func LogSweep(logger *slog.Logger, removed int) {
	if logger == nil {
		return
	}
	if removed > 0 {
		logger.Warn("swept orphaned temp files",
			slog.Int("removed", removed),
		)
		return
	}
	logger.Debug("no orphaned temp files")
}

// LogSessionEvent logs a checkpoint lifecycle transition.
func LogSessionEvent(logger *slog.Logger, event, planID string, stepIndex int) {
	if logger == nil {
		return
	}
	logger.Info("session "+event,
		slog.String("plan_id", planID),
		slog.Int("step_index", stepIndex),
	)
}

// LogPreflight logs the startup verdict.
func LogPreflight(logger *slog.Logger, verdict string, affectedKeys []string) {
	if logger == nil {
		return
	}
	logger.Info("preflight verdict",
		slog.String("verdict", verdict),
		slog.Any("affected_keys", affectedKeys),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
