package bootstrap

import (
	"fmt"

	"github.com/go-authgate/budgetgate/internal/config"
	"github.com/go-authgate/budgetgate/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// rateLimitMiddlewares holds rate limiting middlewares for the endpoints that
// accept credentials
type rateLimitMiddlewares struct {
	login     gin.HandlerFunc
	loginForm gin.HandlerFunc
	token     gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration.
// redisClient is only used with the redis store.
func setupRateLimiting(
	cfg *config.Config,
	redisClient *redis.Client,
) (rateLimitMiddlewares, error) {
	// Return no-op middlewares when rate limiting is disabled
	noOpMiddleware := func(c *gin.Context) { c.Next() }
	if !cfg.EnableRateLimit {
		zap.L().Named("bootstrap").Info("rate limiting disabled")
		return rateLimitMiddlewares{
			login:     noOpMiddleware,
			loginForm: noOpMiddleware,
			token:     noOpMiddleware,
		}, nil
	}
	return createRateLimiters(cfg, redisClient)
}

// createRateLimiters creates rate limiting middlewares for all endpoints
func createRateLimiters(
	cfg *config.Config,
	redisClient *redis.Client,
) (rateLimitMiddlewares, error) {
	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)

	log := zap.L().Named("bootstrap")
	if storeType == middleware.RateLimitStoreRedis {
		log.Info("rate limiting enabled (redis store, shared across instances)")
	} else {
		log.Info("rate limiting enabled (memory store, single instance only)")
	}

	createLimiter := func(requestsPerMinute int, endpoint string) (gin.HandlerFunc, error) {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: requestsPerMinute,
			Endpoint:          endpoint,
			StoreType:         storeType,
			RedisClient:       redisClient,
			CleanupInterval:   cfg.RateLimitCleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter for %s: %w", endpoint, err)
		}
		return limiter, nil
	}

	var (
		limiters rateLimitMiddlewares
		err      error
	)
	if limiters.login, err = createLimiter(cfg.LoginRateLimit, "api-login"); err != nil {
		return limiters, err
	}
	if limiters.loginForm, err = createLimiter(cfg.LoginRateLimit, "form-login"); err != nil {
		return limiters, err
	}
	if limiters.token, err = createLimiter(cfg.TokenRateLimit, "oauth-token"); err != nil {
		return limiters, err
	}
	return limiters, nil
}
