package interceptors

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/stats"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingOptions customises the tracing stats handler.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	// SkipMethods lists full method names that never produce spans, e.g. health checks.
	SkipMethods []string
	Additional  []otelgrpc.Option
}

// Tracing instruments gRPC traffic with OpenTelemetry server spans.
type Tracing struct {
	handler stats.Handler
}

// NewTracing builds an otelgrpc server handler with the supplied options.
func NewTracing(opts TracingOptions) *Tracing {
	options := make([]otelgrpc.Option, 0, len(opts.Additional)+3)
	if opts.TracerProvider != nil {
		options = append(options, otelgrpc.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagators != nil {
		options = append(options, otelgrpc.WithPropagators(opts.Propagators))
	}
	if len(opts.SkipMethods) > 0 {
		skip := make(map[string]struct{}, len(opts.SkipMethods))
		for _, method := range opts.SkipMethods {
			skip[method] = struct{}{}
		}
		options = append(options, otelgrpc.WithFilter(func(info *stats.RPCTagInfo) bool {
			_, skipped := skip[info.FullMethodName]
			return !skipped
		}))
	}
	options = append(options, opts.Additional...)

	return &Tracing{handler: otelgrpc.NewServerHandler(options...)}
}

// Handler returns the underlying stats handler.
func (t *Tracing) Handler() stats.Handler {
	if t == nil {
		return nil
	}
	return t.handler
}

// ServerOption returns the grpc.ServerOption installing the stats handler.
func (t *Tracing) ServerOption() grpc.ServerOption {
	if t == nil || t.handler == nil {
		return grpc.EmptyServerOption{}
	}
	return grpc.StatsHandler(t.handler)
}
