package blog

import (
	"context"
	"time"

	"github.com/rbaliyan/blog/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/blog"
)

// Instrumented operations.
const (
	opCreate    = "create"
	opUpdate    = "update"
	opPatch     = "patch"
	opGet       = "get"
	opList      = "list"
	opDelete    = "delete"
	opSearch    = "search"
	opIndexSync = "index.sync"
)

var instrumentedOps = []string{opCreate, opUpdate, opPatch, opGet, opList, opDelete, opSearch, opIndexSync}

// opMetrics is the instrument set of one operation.
type opMetrics struct {
	latency metric.Float64Histogram
	count   metric.Int64Counter
	errors  metric.Int64Counter
}

// otelInstrumentation holds OpenTelemetry instrumentation for the blog service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool
	ops            map[string]*opMetrics
	syncRetries    metric.Int64Counter
	outboxPending  metric.Int64Gauge
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)
	o.ops = make(map[string]*opMetrics, len(instrumentedOps))

	for _, op := range instrumentedOps {
		m := &opMetrics{}
		var err error

		m.latency, err = meter.Float64Histogram(
			"blog."+op+".duration",
			metric.WithDescription("Duration of "+op+" operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return err
		}

		m.count, err = meter.Int64Counter(
			"blog."+op+".count",
			metric.WithDescription("Number of "+op+" operations"),
		)
		if err != nil {
			return err
		}

		m.errors, err = meter.Int64Counter(
			"blog."+op+".errors",
			metric.WithDescription("Number of "+op+" errors"),
		)
		if err != nil {
			return err
		}
		o.ops[op] = m
	}

	var err error
	o.syncRetries, err = meter.Int64Counter(
		"blog.index.sync.retries",
		metric.WithDescription("Number of retried index sync attempts"),
	)
	if err != nil {
		return err
	}

	o.outboxPending, err = meter.Int64Gauge(
		"blog.outbox.pending",
		metric.WithDescription("Pending index tasks seen by the last drain"),
	)
	return err
}

// startSpan starts a new span if tracing is enabled.
// The returned function ends the span and records err on it.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// record records latency, count and errors of one operation.
func (o *otelInstrumentation) record(ctx context.Context, op string, kind store.Kind, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}
	m, ok := o.ops[op]
	if !ok {
		return
	}

	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))

	m.latency.Record(ctx, duration.Seconds(), attrs)
	m.count.Add(ctx, 1, attrs)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// recordRetry counts one retried index sync attempt.
func (o *otelInstrumentation) recordRetry(ctx context.Context, kind store.Kind) {
	if !o.metricsEnabled {
		return
	}
	o.syncRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

// recordPending records the outbox backlog.
func (o *otelInstrumentation) recordPending(ctx context.Context, n int64) {
	if !o.metricsEnabled {
		return
	}
	o.outboxPending.Record(ctx, n)
}

// track starts a span and returns a function that ends it and records
// metrics for the operation. Use as:
//
//	ctx, done := s.otel.track(ctx, opGet, store.KindMode)
//	defer func() { done(err) }()
func (o *otelInstrumentation) track(ctx context.Context, op string, kind store.Kind) (context.Context, func(error)) {
	if !o.enabled {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, end := o.startSpan(ctx, "blog."+string(kind)+"."+op, attribute.String("kind", string(kind)))
	return ctx, func(err error) {
		end(err)
		o.record(ctx, op, kind, time.Since(start), err)
	}
}
