package ratelimit

import "time"

// NoOpMetrics implements the Metrics interface with no-op implementations.
//
// It is the default when no metrics are configured and is used in tests.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new NoOpMetrics instance.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// RecordDecision is a no-op implementation.
func (m *NoOpMetrics) RecordDecision(category string, admitted bool) {}

// RecordCheckDuration is a no-op implementation.
func (m *NoOpMetrics) RecordCheckDuration(category string, duration time.Duration) {}

// RecordStoreError is a no-op implementation.
func (m *NoOpMetrics) RecordStoreError(operation string) {}

// SetActiveKeys is a no-op implementation.
func (m *NoOpMetrics) SetActiveKeys(count int) {}

// RecordEviction is a no-op implementation.
func (m *NoOpMetrics) RecordEviction(count int) {}

// RecordCircuitState is a no-op implementation.
func (m *NoOpMetrics) RecordCircuitState(state string) {}
