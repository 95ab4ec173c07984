// Package resilience holds the fault-tolerance helpers the gateway puts in
// front of its remote collaborators.
//
//   - circuitbreaker wraps sony/gobreaker. The Redis quota store and the
//     PostgreSQL role registry each get their own breaker so that a dead
//     dependency fails fast instead of stalling admission.
//   - retry provides bounded exponential backoff with jitter, used for
//     transient role-registry faults inside a request's lookup budget.
//
// Neither helper ever turns a failure into an admission: callers map an open
// circuit or exhausted retries to a 500.
package resilience
