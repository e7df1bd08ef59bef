package events

import (
	"go.uber.org/zap"

	"github.com/ferrous-os/ferrous/internal/infrastructure/monitoring"
)

// LogSink writes events to the structured audit log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	fields := []zap.Field{
		zap.String("event_id", e.ID.String()),
		zap.String("kind", string(e.Kind)),
		zap.Uint32("actor", uint32(e.Actor)),
		zap.String("result", string(e.Result)),
	}
	if e.Target != "" {
		fields = append(fields, zap.String("target", e.Target))
	}
	if !e.Causality.IsZero() {
		fields = append(fields,
			zap.String("trace_id", e.Causality.TraceID.String()),
			zap.String("span_id", e.Causality.SpanID.String()),
		)
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.Result {
	case ResultOK:
		s.logger.Info("kernel event", fields...)
	case ResultDenied:
		fields = append(fields, zap.String("error", e.Error))
		s.logger.Warn("kernel event denied", fields...)
	default:
		fields = append(fields, zap.String("error", e.Error))
		s.logger.Error("kernel event failed", fields...)
	}
}

// MetricsSink counts events in Prometheus.
type MetricsSink struct {
	metrics *monitoring.Metrics
}

// NewMetricsSink creates a sink backed by the given metrics collector.
func NewMetricsSink(metrics *monitoring.Metrics) *MetricsSink {
	return &MetricsSink{metrics: metrics}
}

// Emit implements Sink.
func (s *MetricsSink) Emit(e Event) {
	s.metrics.RecordEvent(string(e.Kind), string(e.Result))
}
