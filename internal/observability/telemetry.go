// File: internal/observability/telemetry.go
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope for every span and instrument the
// agent emits. Without an SDK registered by the host these are no-ops.
const ScopeName = "droidpilot/agent"

// Tracer returns the agent's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(ScopeName)
}

// Instruments groups the metric instruments recorded by the control loop.
// Creation failures leave the field nil and the matching Record call is a no-op.
type Instruments struct {
	steps          metric.Int64Counter
	loopDetections metric.Int64Counter
	modelLatency   metric.Float64Histogram
}

// NewInstruments creates the agent instruments on the global meter provider.
func NewInstruments() *Instruments {
	return NewInstrumentsFromMeter(otel.GetMeterProvider().Meter(ScopeName))
}

// NewInstrumentsFromMeter creates the agent instruments on a specific meter.
func NewInstrumentsFromMeter(m metric.Meter) *Instruments {
	in := &Instruments{}
	if c, err := m.Int64Counter("droidpilot.agent.steps",
		metric.WithDescription("Steps executed by the control loop.")); err == nil {
		in.steps = c
	}
	if c, err := m.Int64Counter("droidpilot.agent.loop_detections",
		metric.WithDescription("Repetition patterns flagged before dispatch.")); err == nil {
		in.loopDetections = c
	}
	if h, err := m.Float64Histogram("droidpilot.model.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Wall time of a single model generation.")); err == nil {
		in.modelLatency = h
	}
	return in
}

// RecordStep counts one executed step.
func (in *Instruments) RecordStep(ctx context.Context, kind string, success bool) {
	if in == nil || in.steps == nil {
		return
	}
	in.steps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action.kind", kind),
		attribute.Bool("action.success", success),
	))
}

// RecordLoop counts one loop detection.
func (in *Instruments) RecordLoop(ctx context.Context, pattern, severity string) {
	if in == nil || in.loopDetections == nil {
		return
	}
	in.loopDetections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("loop.pattern", pattern),
		attribute.String("loop.severity", severity),
	))
}

// RecordModelLatency records a generation's wall time.
func (in *Instruments) RecordModelLatency(ctx context.Context, model string, d time.Duration, failed bool) {
	if in == nil || in.modelLatency == nil {
		return
	}
	in.modelLatency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("model.name", model),
		attribute.Bool("model.failed", failed),
	))
}
