package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"usic-gateway/internal/handler/http/requestid"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", slog.String("client_id", "203.0.113.9"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "info is below the configured level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "203.0.113.9", entry["client_id"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Format: "text", Output: &buf})

	logger.Info("started", slog.String("addr", ":8080"))

	assert.Contains(t, buf.String(), "msg=started")
	assert.Contains(t, buf.String(), "addr=:8080")
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf})

	ctx := requestid.WithRequestID(context.Background(), "req-42")
	WithRequestID(ctx, base).Info("handled")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)

	buf.Reset()
	WithRequestID(context.Background(), base).Info("handled")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf})

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	WithTrace(ctx, base).Info("traced")
	assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())

	buf.Reset()
	WithTrace(context.Background(), base).Info("untraced")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestContextRoundTrip(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	logger := New(Options{Output: &bytes.Buffer{}})
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}
