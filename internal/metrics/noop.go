package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Token Operations - noop implementations
func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string, generationTime time.Duration) {
}
func (n *NoopMetrics) RecordTokenRevoked(tokenType, reason string)                {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                            {}
func (n *NoopMetrics) RecordTokenValidation(result string, duration time.Duration) {}

// Authentication - noop implementations
func (n *NoopMetrics) RecordLogin(authSource string, success bool) {}
func (n *NoopMetrics) RecordLogout()                               {}

// Authorization Code Flow - noop implementations
func (n *NoopMetrics) RecordAuthCodeIssued()                 {}
func (n *NoopMetrics) RecordAuthCodeExchanged(result string) {}

// Ledger - noop implementations
func (n *NoopMetrics) RecordPruned(table string, rows int64) {}

// Database Operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
