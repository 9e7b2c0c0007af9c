package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-authgate/budgetgate/internal/config"
	"github.com/go-authgate/budgetgate/internal/metrics"
	"github.com/go-authgate/budgetgate/internal/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:         ":8080",
		BaseURL:            "http://localhost:8080",
		LogLevel:           "info",
		AccessTokenSecret:  "access-secret-for-bootstrap-tests",
		RefreshTokenSecret: "refresh-secret-for-bootstrap-tests",
		TokenIssuer:        "budgetgate",
		TokenAudience:      "budgetgate-api",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    24 * time.Hour,
		AuthCodeTTL:        10 * time.Minute,
		DatabaseDriver:     config.DatabaseDriverSQLite,
		DBInitTimeout:      5 * time.Second,
		PasswordHashCost:   12,
		AdminUsername:      "admin",
		AdminPassword:      "bootstrap-admin-password",
		SessionSecret:      "bootstrap-session-secret",
		SessionMaxAge:      3600,
		RateLimitStore:     config.RateLimitStoreMemory,
		LoginRateLimit:     5,
		TokenRateLimit:     20,
	}
}

func TestValidateAllConfiguration(t *testing.T) {
	require.NoError(t, validateAllConfiguration(testConfig()))

	cfg := testConfig()
	cfg.AccessTokenSecret = ""
	err := validateAllConfiguration(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingSigningSecret)
	assert.Contains(t, err.Error(), "invalid signing configuration")

	cfg = testConfig()
	cfg.RefreshTokenSecret = cfg.AccessTokenSecret
	assert.ErrorIs(t, validateAllConfiguration(cfg), config.ErrMissingSigningSecret)

	cfg = testConfig()
	cfg.DatabaseDriver = "mysql"
	err = validateAllConfiguration(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	cfg = testConfig()
	cfg.IsProduction = true
	cfg.SessionSecret = config.DefaultSessionSecret
	err = validateAllConfiguration(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestNewLogger(t *testing.T) {
	for _, production := range []bool{true, false} {
		cfg := testConfig()
		cfg.IsProduction = production
		logger, err := newLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}

	cfg := testConfig()
	cfg.LogLevel = "chatty"
	_, err := newLogger(cfg)
	assert.Error(t, err)
}

func TestInitializeMetrics(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := &config.Config{MetricsEnabled: enabled}
		m := initializeMetrics(cfg)
		require.NotNil(t, m)
	}
}

func TestInitializeRateLimitRedisClient_NotNeeded(t *testing.T) {
	cfg := testConfig()
	client, err := initializeRateLimitRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, client)

	cfg.EnableRateLimit = false
	cfg.RateLimitStore = config.RateLimitStoreRedis
	client, err = initializeRateLimitRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestSetupRateLimitingDisabled(t *testing.T) {
	limiters, err := setupRateLimiting(&config.Config{EnableRateLimit: false}, nil)
	require.NoError(t, err)
	require.NotNil(t, limiters.login)
	require.NotNil(t, limiters.loginForm)
	require.NotNil(t, limiters.token)

	// Verify noop middlewares don't panic
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	assert.NotPanics(t, func() { limiters.login(c) })
}

func TestSetupRateLimitingMemory(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRateLimit = true
	limiters, err := setupRateLimiting(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, limiters.login)
	require.NotNil(t, limiters.loginForm)
	require.NotNil(t, limiters.token)
}

func TestSetupRateLimitingRedisWithoutClient(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRateLimit = true
	cfg.RateLimitStore = config.RateLimitStoreRedis
	_, err := setupRateLimiting(cfg, nil)
	assert.Error(t, err)
}

func TestCreateHTTPServer(t *testing.T) {
	srv := createHTTPServer(
		&config.Config{ServerAddr: ":8080"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)
	require.NotNil(t, srv)
	assert.Equal(t, ":8080", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
}

func TestGinModeMap(t *testing.T) {
	assert.Equal(t, gin.ReleaseMode, ginModeMap[true])
	assert.Equal(t, gin.DebugMode, ginModeMap[false])
}

// newTestRouter wires the whole HTTP layer on an in-memory store.
func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	cfg.PasswordHashCost = bcrypt.MinCost
	db := storetest.NewSQLite(t)
	recorder := metrics.Init(cfg.MetricsEnabled)
	s := initializeServices(cfg, db, recorder)
	require.NoError(t, ensureAdmin(context.Background(), cfg, s.user))

	router, err := setupRouter(cfg, initializeHandlers(cfg, db, s), recorder, nil)
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)
	return router
}

func TestSetupRouter_Wiring(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRateLimit = true
	cfg.LoginRateLimit = 2
	router := newTestRouter(t, cfg)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := serve(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="csrf_token"`)

	// Metrics are not exposed unless enabled
	w = serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Admin API without credentials
	w = serve(httptest.NewRequest(http.MethodGet, "/admin/clients", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The bootstrap admin can log in through the API
	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"username":"admin","password":"bootstrap-admin-password"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "10.1.2.3")
		return serve(req)
	}
	assert.Equal(t, http.StatusOK, login().Code)
	assert.Equal(t, http.StatusOK, login().Code)
	assert.Equal(t, http.StatusTooManyRequests, login().Code)
}

func TestSetupRouter_MetricsToken(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = true
	cfg.MetricsToken = "scrape-me"
	router := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer scrape-me")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "budgetgate_")
}

func TestSetupRouter_CORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = []string{"https://budget.example.com"}
	router := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://budget.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://budget.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPruneLedger(t *testing.T) {
	cfg := testConfig()
	db := storetest.NewSQLite(t)
	s := initializeServices(cfg, db, metrics.NewNoopMetrics())
	assert.NotPanics(t, func() { pruneLedger(context.Background(), s.ledger) })
}
