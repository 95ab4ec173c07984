package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"usic-gateway/internal/handler/http/pathutil"
	"usic-gateway/internal/handler/http/requestid"
	"usic-gateway/internal/handler/http/responsewriter"
)

// Middleware continues the caller's trace, or starts one, with a server span
// around the whole gateway hop. Admission stage spans and the upstream call
// become its children. The trace ID is echoed in X-Trace-Id.
//
// Span names use the normalized route so identifiers in URLs do not create
// one span name per resource.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(
			r.Context(),
			propagation.HeaderCarrier(r.Header),
		)

		route := pathutil.NormalizePath(r.URL.Path)
		ctx, span := Tracer().Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		w.Header().Set("X-Trace-Id", span.SpanContext().TraceID().String())

		rw := responsewriter.Wrap(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", rw.StatusCode()),
			attribute.String("gateway.request_id", requestid.FromContext(r.Context())),
		)
		if rw.StatusCode() >= 500 {
			span.SetStatus(codes.Error, http.StatusText(rw.StatusCode()))
		}
	})
}
