package observability

import (
	"context"
	"time"

	"cubegate/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedLimiter wraps a ratelimit.Limiter implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedLimiter struct {
	inner     ratelimit.Limiter
	tracer    trace.Tracer
	duration  metric.Float64Histogram
	decisions metric.Int64Counter
	blocks    metric.Int64Counter
}

// NewInstrumentedLimiter creates a limiter wrapper that records trace spans,
// check latency histograms, and per-decision counters for every limiter call.
func NewInstrumentedLimiter(inner ratelimit.Limiter) (*InstrumentedLimiter, error) {
	tracer := otel.Tracer("cubegate/ratelimit")
	meter := otel.Meter("cubegate/ratelimit")

	duration, err := meter.Float64Histogram(
		"ratelimit.check.duration",
		metric.WithDescription("Duration of rate limit checks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Number of rate limit decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	blocks, err := meter.Int64Counter(
		"ratelimit.blocks",
		metric.WithDescription("Number of administrative blocks applied"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedLimiter{
		inner:     inner,
		tracer:    tracer,
		duration:  duration,
		decisions: decisions,
		blocks:    blocks,
	}, nil
}

func (l *InstrumentedLimiter) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := l.tracer.Start(ctx, "ratelimit."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("ratelimit.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (l *InstrumentedLimiter) recordCheck(ctx context.Context, span trace.Span, endpoint string, start time.Time, result ratelimit.Result) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Bool("allowed", result.Allowed),
	)

	l.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("endpoint", endpoint)))
	l.decisions.Add(ctx, 1, attrs)

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", result.Allowed),
		attribute.Int("ratelimit.remaining", result.Remaining),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (l *InstrumentedLimiter) Check(ctx context.Context, identifier, endpoint string) ratelimit.Result {
	ctx, span := l.startSpan(ctx, "Check",
		attribute.String("identifier", identifier),
		attribute.String("endpoint", endpoint),
	)
	start := time.Now()
	result := l.inner.Check(ctx, identifier, endpoint)
	l.recordCheck(ctx, span, endpoint, start, result)
	return result
}

func (l *InstrumentedLimiter) Consume(ctx context.Context, identifier, endpoint string) ratelimit.Result {
	ctx, span := l.startSpan(ctx, "Consume",
		attribute.String("identifier", identifier),
		attribute.String("endpoint", endpoint),
	)
	start := time.Now()
	result := l.inner.Consume(ctx, identifier, endpoint)
	l.recordCheck(ctx, span, endpoint, start, result)
	return result
}

func (l *InstrumentedLimiter) Reset(ctx context.Context, identifier string) {
	ctx, span := l.startSpan(ctx, "Reset", attribute.String("identifier", identifier))
	l.inner.Reset(ctx, identifier)
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (l *InstrumentedLimiter) Block(ctx context.Context, identifier string, duration time.Duration) {
	ctx, span := l.startSpan(ctx, "Block",
		attribute.String("identifier", identifier),
		attribute.String("duration", duration.String()),
	)
	l.inner.Block(ctx, identifier, duration)
	l.blocks.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "admin")))
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (l *InstrumentedLimiter) IsBlocked(ctx context.Context, identifier string) bool {
	ctx, span := l.startSpan(ctx, "IsBlocked", attribute.String("identifier", identifier))
	blocked := l.inner.IsBlocked(ctx, identifier)
	span.SetAttributes(attribute.Bool("ratelimit.blocked", blocked))
	span.SetStatus(codes.Ok, "")
	span.End()
	return blocked
}

func (l *InstrumentedLimiter) Status(ctx context.Context, identifier, endpoint string) ratelimit.Status {
	ctx, span := l.startSpan(ctx, "Status",
		attribute.String("identifier", identifier),
		attribute.String("endpoint", endpoint),
	)
	status := l.inner.Status(ctx, identifier, endpoint)
	span.SetStatus(codes.Ok, "")
	span.End()
	return status
}

func (l *InstrumentedLimiter) Config() ratelimit.Config {
	return l.inner.Config()
}

func (l *InstrumentedLimiter) SetConfig(patch ratelimit.ConfigPatch) {
	l.inner.SetConfig(patch)
}

func (l *InstrumentedLimiter) Close() {
	l.inner.Close()
}
