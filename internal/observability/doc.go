// Package observability groups the gateway's logging and tracing setup.
//
// Subpackages:
//   - logging: slog construction and the request-scoped logger carried in
//     the context, annotated with request and trace IDs
//   - tracing: the OpenTelemetry tracer provider, W3C propagation and the
//     HTTP span middleware
//
// Metrics are registered next to the code that records them (admission,
// identity, rolegate, maintenance, handler/http) and rate-limit metrics use
// their own registry exposed through /metrics.
package observability
