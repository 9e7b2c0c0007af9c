package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Token Operations
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration)
	RecordTokenRevoked(tokenType, reason string)
	RecordTokenRefresh(success bool)
	RecordTokenValidation(result string, duration time.Duration)

	// Authentication
	RecordLogin(authSource string, success bool)
	RecordLogout()

	// Authorization Code Flow
	RecordAuthCodeIssued()
	RecordAuthCodeExchanged(result string)

	// Ledger maintenance
	RecordPruned(table string, rows int64)

	// Database Operations
	RecordDatabaseQueryError(operation string)
}
