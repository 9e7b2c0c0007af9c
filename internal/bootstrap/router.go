package bootstrap

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-authgate/budgetgate/internal/config"
	"github.com/go-authgate/budgetgate/internal/metrics"
	"github.com/go-authgate/budgetgate/internal/middleware"
	"github.com/go-authgate/budgetgate/internal/templates"
	"github.com/go-authgate/budgetgate/internal/version"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// sessionCookieName names the browser session cookie
const sessionCookieName = "budgetgate_session"

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	h handlerSet,
	recorder metrics.Recorder,
	rateLimitRedisClient *redis.Client,
) (*gin.Engine, error) {
	// Setup Gin mode
	setupGinMode(cfg)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())
	setupCORS(r, cfg)

	// Setup session middleware
	setupSessionMiddleware(r, cfg)

	r.SetHTMLTemplate(templates.MustLoad())

	// Health check endpoint
	r.GET("/health", h.health.Health)

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg)

	// Setup rate limiting
	rateLimiters, err := setupRateLimiting(cfg, rateLimitRedisClient)
	if err != nil {
		return nil, err
	}

	// Setup all routes
	setupAllRoutes(r, h, rateLimiters)

	// Log server startup info
	logServerStartup(cfg)

	return r, nil
}

// setupCORS allows the configured browser origins to call the JSON API
func setupCORS(r *gin.Engine, cfg *config.Config) {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return
	}
	origins := slices.Clone(cfg.CORSAllowedOrigins)
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return slices.Contains(origins, origin)
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// setupSessionMiddleware configures session handling middleware
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionCookieName, sessionStore))
}

// setupMetricsEndpoint exposes Prometheus metrics, optionally behind a static Bearer token
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	log := zap.L().Named("bootstrap")
	switch {
	case !cfg.MetricsEnabled:
		log.Info("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Info("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.StaticBearer("Metrics", cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Info("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupAllRoutes configures all application routes
func setupAllRoutes(r *gin.Engine, h handlerSet, rateLimiters rateLimitMiddlewares) {
	// Browser login surface (session + CSRF)
	browser := r.Group("")
	browser.Use(middleware.CSRFMiddleware())
	{
		browser.GET(middleware.LoginPath, h.auth.LoginPage)
		browser.POST(middleware.LoginPath, rateLimiters.loginForm, h.auth.Login)
	}
	r.GET("/logout", h.auth.Logout)

	// Token-based API authentication
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", rateLimiters.login, h.auth.APILogin)
		authGroup.POST("/logout", middleware.RequireBearer(h.authn, ""), h.auth.APILogout)
		authGroup.GET("/me", middleware.RequireBearer(h.authn, "api"), h.auth.Me)
	}

	// OAuth 2.0 authorization code flow
	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", h.authorization.Authorize)
		oauth.POST("/token", rateLimiters.token, h.token.Token)
	}

	// Admin routes (bearer token or session, admin role)
	admin := r.Group("/admin")
	admin.Use(middleware.DualAuth(h.authn), middleware.RequireAdmin())
	{
		admin.GET("/clients", h.client.ListClients)
		admin.POST("/clients", h.client.CreateClient)
		admin.GET("/clients/:id", h.client.GetClient)
		admin.PUT("/clients/:id", h.client.UpdateClient)
		admin.POST("/clients/:id/secret", h.client.RotateSecret)
		admin.DELETE("/clients/:id", h.client.DeleteClient)

		admin.POST("/users", h.user.CreateUser)
		admin.GET("/users/:id", h.user.GetUser)
		admin.PATCH("/users/:id", h.user.UpdateUser)
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	mode := ginModeMap[cfg.IsProduction]
	gin.SetMode(mode)
	zap.L().Named("bootstrap").Info("gin mode", zap.String("mode", mode))
}

var ginModeMap = map[bool]string{
	true:  gin.ReleaseMode,
	false: gin.DebugMode,
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	zap.L().Named("bootstrap").Info(version.App+" starting",
		zap.String("version", version.String()),
		zap.String("addr", cfg.ServerAddr),
		zap.String("base_url", cfg.BaseURL),
		zap.String("login_url", cfg.BaseURL+middleware.LoginPath),
		zap.String("database", cfg.DatabaseDriver))
}
