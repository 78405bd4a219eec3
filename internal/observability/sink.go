package observability

import (
	"log/slog"
	"time"
)

// Record is one monitored operation outcome.
type Record struct {
	Component string
	Operation string
	Status    string // "success" or "error"
	Duration  time.Duration
	Metadata  map[string]string
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Sink receives operation outcomes from the pipeline and its collaborators.
// Implementations must be safe for concurrent use and must never block the
// caller on downstream availability.
type Sink interface {
	Record(rec Record)
}

// PromSink fans records into the Prometheus registry and the structured log.
type PromSink struct {
	logger *slog.Logger
}

func NewSink(logger *slog.Logger) *PromSink {
	return &PromSink{logger: logger}
}

func (s *PromSink) Record(rec Record) {
	OperationsTotal.WithLabelValues(rec.Component, rec.Operation, rec.Status).Inc()
	OperationDuration.WithLabelValues(rec.Component, rec.Operation).Observe(rec.Duration.Seconds())

	if s.logger == nil {
		return
	}
	args := []any{
		"component", rec.Component,
		"operation", rec.Operation,
		"status", rec.Status,
		"duration_ms", rec.Duration.Milliseconds(),
	}
	for k, v := range rec.Metadata {
		args = append(args, k, v)
	}
	if rec.Status == StatusError {
		s.logger.Warn("monitor", args...)
		return
	}
	s.logger.Info("monitor", args...)
}

// NopSink swallows records; used in tests and when monitoring is disabled.
type NopSink struct{}

func (NopSink) Record(Record) {}
