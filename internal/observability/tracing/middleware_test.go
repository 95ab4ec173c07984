package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"usic-gateway/internal/handler/http/requestid"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})
	return recorder
}

func TestMiddleware_ServerSpan(t *testing.T) {
	recorder := installRecorder(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts/42", nil)
	req = req.WithContext(requestid.WithRequestID(req.Context(), "req-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /api/posts/:id" {
		t.Errorf("span name = %q, want the normalized route", span.Name())
	}

	attrs := map[string]string{}
	for _, attr := range span.Attributes() {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}
	want := map[string]string{
		"http.request.method":       "GET",
		"http.route":                "/api/posts/:id",
		"http.response.status_code": "429",
		"gateway.request_id":        "req-1",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
	if span.Status().Code == codes.Error {
		t.Error("a 429 is a rejection, not a span error")
	}
}

func TestMiddleware_AddsTraceIDToResponse(t *testing.T) {
	installRecorder(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	traceID := rr.Header().Get("X-Trace-Id")
	if len(traceID) != 32 {
		t.Errorf("expected a 32 character trace ID, got %q", traceID)
	}
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	recorder := installRecorder(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	want := "4bf92f3577b34da6a3ce929d0e0e4736"
	if got := spans[0].SpanContext().TraceID().String(); got != want {
		t.Errorf("expected trace ID %s, got %s", want, got)
	}
}

func TestMiddleware_MarksErrorSpansFor5xx(t *testing.T) {
	recorder := installRecorder(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/admin/rate-limit/clear", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
}

func TestInit_ReturnsShutdown(t *testing.T) {
	shutdown := Init(Options{ServiceName: "gateway-test", SampleRatio: 0.5})
	t.Cleanup(func() { otel.SetTracerProvider(sdktrace.NewTracerProvider()) })

	_, span := Tracer().Start(context.Background(), "probe")
	if !span.SpanContext().HasTraceID() {
		t.Error("expected span from installed provider to carry a trace ID")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
