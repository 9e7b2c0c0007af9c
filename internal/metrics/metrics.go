package metrics

import (
	"sync"

	"github.com/go-authgate/budgetgate/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is an alias so callers can depend on the metrics package alone.
type Recorder = core.Recorder

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Token Metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokenGenerationDuration prometheus.Histogram
	TokenValidationDuration prometheus.Histogram

	// Authentication Metrics
	AuthLoginTotal  *prometheus.CounterVec
	AuthLogoutTotal prometheus.Counter

	// Authorization Code Metrics
	AuthCodesIssuedTotal    prometheus.Counter
	AuthCodesExchangedTotal *prometheus.CounterVec

	// Ledger Metrics
	LedgerRowsPrunedTotal *prometheus.CounterVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	m := &Metrics{
		// Token Metrics
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetgate_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{
				"token_type",
				"grant_type",
			}, // token_type: access, refresh; grant_type: password, authorization_code, refresh_token
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetgate_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"token_type", "reason"}, // reason: logout, rotation, admin
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetgate_tokens_refreshed_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"result"}, // success, error
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetgate_token_validation_total",
				Help: "Total number of token validations",
			},
			[]string{"result"}, // valid, invalid, expired, revoked
		),
		TokenGenerationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "budgetgate_token_generation_duration_seconds",
				Help:    "Time taken to sign and record a token pair",
				Buckets: prometheus.DefBuckets,
			},
		),
		TokenValidationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "budgetgate_token_validation_duration_seconds",
				Help:    "Time taken to validate tokens",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Authentication Metrics
		AuthLoginTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetgate_auth_login_total",
				Help: "Total number of login attempts",
			},
			[]string{"auth_source", "result"}, // auth_source: password, session, refresh_token
		),
		AuthLogoutTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "budgetgate_auth_logout_total",
				Help: "Total number of logouts",
			},
		),

		// Authorization Code Metrics
		AuthCodesIssuedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "budgetgate_auth_codes_issued_total",
				Help: "Total number of authorization codes issued",
			},
		),
		AuthCodesExchangedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetgate_auth_codes_exchanged_total",
				Help: "Total number of authorization code exchange attempts",
			},
			[]string{"result"}, // success, invalid_grant, invalid_client
		),

		// Ledger Metrics
		LedgerRowsPrunedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budgetgate_ledger_rows_pruned_total",
				Help: "Total number of expired ledger rows removed",
			},
			[]string{"table"}, // tokens, auth_codes
		),

		// HTTP Request Metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		// Database Query Metrics
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"}, // prune_tokens, prune_auth_codes
		),
	}

	return m
}
