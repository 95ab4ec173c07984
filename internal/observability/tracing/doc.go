// Package tracing wires OpenTelemetry into the gateway: a global tracer
// provider, W3C trace-context propagation and an HTTP server-span
// middleware. Admission stages open child spans under the server span.
package tracing
