package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the gateway's tracer.
const InstrumentationName = "usic-gateway"

// Options configures Init.
type Options struct {
	ServiceName string

	// SampleRatio is the fraction of root spans sampled. Values outside
	// (0, 1] mean always sample.
	SampleRatio float64

	// Processors receive finished spans. Without any, spans are still
	// created so trace IDs reach logs and response headers.
	Processors []sdktrace.SpanProcessor
}

// Init installs a global tracer provider and the W3C propagator. The
// returned function flushes and stops the provider.
func Init(opts Options) func(context.Context) error {
	name := opts.ServiceName
	if name == "" {
		name = InstrumentationName
	}

	sampler := sdktrace.AlwaysSample()
	if opts.SampleRatio > 0 && opts.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(opts.SampleRatio)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	}
	for _, p := range opts.Processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown
}

// Tracer returns the gateway tracer from the current global provider.
//
// Example usage:
//
//	ctx, span := tracing.Tracer().Start(ctx, "operation-name")
//	defer span.End()
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
