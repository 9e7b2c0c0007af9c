package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	m := Init(true)
	assert.NotNil(t, m)

	metrics, ok := m.(*Metrics)
	require.True(t, ok, "Init(true) should return *Metrics")
	assert.NotNil(t, metrics.TokensIssuedTotal)
	assert.NotNil(t, metrics.AuthLoginTotal)
	assert.NotNil(t, metrics.HTTPRequestsTotal)

	// Second call must not re-register collectors
	assert.Same(t, metrics, Init(true))
}

func TestInitNoop(t *testing.T) {
	m := Init(false)
	assert.NotNil(t, m)

	_, ok := m.(*NoopMetrics)
	assert.True(t, ok, "Init(false) should return *NoopMetrics")

	// Noop recorder accepts every call
	m.RecordTokenIssued("access", "password", time.Millisecond)
	m.RecordPruned("tokens", 3)
	m.RecordLogout()
}

func TestRecordTokenIssued(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("access", "password"))
	m.RecordTokenIssued("access", "password", 5*time.Millisecond)
	after := testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("access", "password"))

	assert.InDelta(t, 1, after-before, 0.0001)
}

func TestRecordPruned_IgnoresZero(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.LedgerRowsPrunedTotal.WithLabelValues("auth_codes"))
	m.RecordPruned("auth_codes", 0)
	m.RecordPruned("auth_codes", 4)
	after := testutil.ToFloat64(m.LedgerRowsPrunedTotal.WithLabelValues("auth_codes"))

	assert.InDelta(t, 4, after-before, 0.0001)
}

func TestRecordAuthCodeExchanged(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.AuthCodesExchangedTotal.WithLabelValues("invalid_grant"))
	m.RecordAuthCodeExchanged("invalid_grant")
	after := testutil.ToFloat64(m.AuthCodesExchangedTotal.WithLabelValues("invalid_grant"))

	assert.InDelta(t, 1, after-before, 0.0001)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := Init(true).(*Metrics)

	r := gin.New()
	r.Use(HTTPMetricsMiddleware(m))
	r.GET("/admin/clients/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/admin/clients/:id", "204"),
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/clients/abc", nil)
	r.ServeHTTP(w, req)

	after := testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/admin/clients/:id", "204"),
	)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.InDelta(t, 1, after-before, 0.0001)
}

func TestHTTPMetricsMiddleware_Noop(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(HTTPMetricsMiddleware(NewNoopMetrics()))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
