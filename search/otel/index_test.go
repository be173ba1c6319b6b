package otel

import (
	"testing"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/search/indextest"
	"github.com/rbaliyan/blog/search/memory"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestConformance(t *testing.T) {
	indextest.Run(t, func(t *testing.T) search.Index {
		x, err := New(memory.New(),
			WithTracerProvider(tracenoop.NewTracerProvider()),
			WithMeterProvider(metricnoop.NewMeterProvider()),
		)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return x
	})
}

func TestDisabled(t *testing.T) {
	x, err := New(memory.New(), WithTracing(false), WithMetrics(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if x.tracer != nil {
		t.Error("expected no tracer when tracing is disabled")
	}
	if len(x.ops) != 0 {
		t.Error("expected no instruments when metrics are disabled")
	}
	indextest.Run(t, func(t *testing.T) search.Index {
		x, err := New(memory.New(), WithTracing(false), WithMetrics(false))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return x
	})
}
