package interceptors

import (
	"testing"

	"google.golang.org/grpc"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTracingBuildsStatsHandler(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	tracing := NewTracing(TracingOptions{
		TracerProvider: tp,
		SkipMethods:    []string{"/grpc.health.v1.Health/Check"},
	})
	if tracing.Handler() == nil {
		t.Fatalf("expected stats handler")
	}
	if _, ok := tracing.ServerOption().(grpc.EmptyServerOption); ok {
		t.Fatalf("expected stats handler server option")
	}
}

func TestNilTracingIsNoop(t *testing.T) {
	var tracing *Tracing
	if tracing.Handler() != nil {
		t.Fatalf("expected nil handler")
	}
	if _, ok := tracing.ServerOption().(grpc.EmptyServerOption); !ok {
		t.Fatalf("expected empty server option")
	}
}
