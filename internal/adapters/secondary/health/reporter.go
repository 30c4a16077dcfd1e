package health

import (
	"context"
	"log/slog"
)

// LogReporter reports health check results through structured logging,
// raising the level when a check fails.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a logging health reporter.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// Report logs one check result.
func (r *LogReporter) Report(result *Result) {
	if result == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("check", result.Check),
		slog.String("status", string(result.Status)),
		slog.Duration("response_time", result.ResponseTime),
		slog.Time("checked_at", result.CheckedAt),
	}
	if result.Message != "" {
		attrs = append(attrs, slog.String("message", result.Message))
	}

	if result.Healthy() {
		r.logger.LogAttrs(context.Background(), slog.LevelInfo, "health check passed", attrs...)
		return
	}
	r.logger.LogAttrs(context.Background(), slog.LevelWarn, "health check failed", attrs...)
}

// ReportAll logs a batch of check results plus an overall verdict.
func (r *LogReporter) ReportAll(results []*Result) {
	if len(results) == 0 {
		r.logger.Info("no health check results available")
		return
	}

	healthy := 0
	for _, result := range results {
		r.Report(result)
		if result.Healthy() {
			healthy++
		}
	}

	attrs := []slog.Attr{
		slog.Int("total", len(results)),
		slog.Int("healthy", healthy),
		slog.Int("unhealthy", len(results) - healthy),
	}
	if healthy == len(results) {
		r.logger.LogAttrs(context.Background(), slog.LevelInfo, "engine healthy", attrs...)
		return
	}
	r.logger.LogAttrs(context.Background(), slog.LevelWarn, "engine health degraded", attrs...)
}
