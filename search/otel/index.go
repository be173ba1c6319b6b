// Package otel provides OpenTelemetry instrumentation for search indexes.
package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/blog/search/otel"
)

// instruments is the metric set of one operation.
type instruments struct {
	latency metric.Float64Histogram
	count   metric.Int64Counter
	errors  metric.Int64Counter
}

// Index wraps a search.Index with OpenTelemetry instrumentation.
type Index struct {
	backend search.Index
	opts    *options

	tracer trace.Tracer

	ops       map[string]*instruments
	hitsTotal metric.Int64Histogram
}

// Ensure Index implements search.Index.
var _ search.Index = (*Index)(nil)

// instrumented operations.
var operations = []string{"index", "delete", "search", "count", "clear"}

// New creates an instrumented index wrapping the given backend.
func New(backend search.Index, opts ...Option) (*Index, error) {
	o := &options{
		tracingEnabled: true,
		metricsEnabled: true,
		serviceName:    "blog",
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	x := &Index{
		backend: backend,
		opts:    o,
		ops:     make(map[string]*instruments, len(operations)),
	}
	if o.tracingEnabled {
		x.tracer = o.tracerProvider.Tracer(instrumentationName)
	}
	if o.metricsEnabled {
		if err := x.initMetrics(o.meterProvider); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}
	return x, nil
}

func (x *Index) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	for _, op := range operations {
		var (
			in  instruments
			err error
		)
		in.latency, err = meter.Float64Histogram(
			"search."+op+".duration",
			metric.WithDescription("Duration of search index "+op+" operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return err
		}
		in.count, err = meter.Int64Counter(
			"search."+op+".count",
			metric.WithDescription("Number of search index "+op+" operations"),
		)
		if err != nil {
			return err
		}
		in.errors, err = meter.Int64Counter(
			"search."+op+".errors",
			metric.WithDescription("Number of search index "+op+" errors"),
		)
		if err != nil {
			return err
		}
		x.ops[op] = &in
	}

	var err error
	x.hitsTotal, err = meter.Int64Histogram(
		"search.search.hits",
		metric.WithDescription("Total hits per search"),
	)
	return err
}

// observe runs fn inside a span and records its metrics.
func (x *Index) observe(ctx context.Context, op string, kind store.Kind, fn func(ctx context.Context) error) error {
	attrs := []attribute.KeyValue{
		attribute.String("search.kind", string(kind)),
		attribute.String("service.name", x.opts.serviceName),
	}

	var span trace.Span
	if x.opts.tracingEnabled && x.tracer != nil {
		ctx, span = x.tracer.Start(ctx, "search."+op,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()

	if x.opts.metricsEnabled {
		in := x.ops[op]
		metricAttrs := metric.WithAttributes(attrs...)
		in.latency.Record(ctx, duration, metricAttrs)
		in.count.Add(ctx, 1, metricAttrs)
		if err != nil {
			in.errors.Add(ctx, 1, metricAttrs)
		}
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return err
}

func (x *Index) Connect(ctx context.Context) error {
	return x.backend.Connect(ctx)
}

func (x *Index) Close(ctx context.Context) error {
	return x.backend.Close(ctx)
}

func (x *Index) Index(ctx context.Context, doc search.Document) error {
	return x.observe(ctx, "index", doc.Kind, func(ctx context.Context) error {
		return x.backend.Index(ctx, doc)
	})
}

func (x *Index) Delete(ctx context.Context, kind store.Kind, id int64) error {
	return x.observe(ctx, "delete", kind, func(ctx context.Context) error {
		return x.backend.Delete(ctx, kind, id)
	})
}

func (x *Index) Search(ctx context.Context, kind store.Kind, q search.Query, req store.PageRequest) (*search.Result, error) {
	var res *search.Result
	err := x.observe(ctx, "search", kind, func(ctx context.Context) error {
		var err error
		res, err = x.backend.Search(ctx, kind, q, req)
		if err == nil && x.opts.metricsEnabled {
			x.hitsTotal.Record(ctx, res.Total, metric.WithAttributes(attribute.String("search.kind", string(kind))))
		}
		return err
	})
	return res, err
}

func (x *Index) Count(ctx context.Context, kind store.Kind) (int64, error) {
	var n int64
	err := x.observe(ctx, "count", kind, func(ctx context.Context) error {
		var err error
		n, err = x.backend.Count(ctx, kind)
		return err
	})
	return n, err
}

func (x *Index) Clear(ctx context.Context, kind store.Kind) error {
	return x.observe(ctx, "clear", kind, func(ctx context.Context) error {
		return x.backend.Clear(ctx, kind)
	})
}
