package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// RateLimitStoreType defines the type of rate limit store
type RateLimitStoreType string

const (
	// RateLimitStoreMemory uses in-memory storage (single instance only)
	RateLimitStoreMemory RateLimitStoreType = "memory"
	// RateLimitStoreRedis uses Redis storage shared by every instance
	RateLimitStoreRedis RateLimitStoreType = "redis"
)

// RateLimitConfig holds the configuration for one rate-limited route group
type RateLimitConfig struct {
	RequestsPerMinute int
	Endpoint          string        // used as the key prefix and in logs
	CleanupInterval   time.Duration // expired-key sweep for the memory store

	StoreType   RateLimitStoreType
	RedisClient *redis.Client // required when StoreType is redis
}

// NewRateLimiter creates a per-client-IP limiter for credential-accepting endpoints.
func NewRateLimiter(config RateLimitConfig) (gin.HandlerFunc, error) {
	if config.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limit for %q must be positive", config.Endpoint)
	}
	rate := limiter.Rate{
		Period: time.Minute,
		Limit:  int64(config.RequestsPerMinute),
	}
	prefix := "ratelimit:" + config.Endpoint
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	var store limiter.Store
	switch config.StoreType {
	case RateLimitStoreRedis:
		if config.RedisClient == nil {
			return nil, errors.New("redis rate limit store requires a redis client")
		}
		var err error
		store, err = limiterRedis.NewStoreWithOptions(config.RedisClient, limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: config.CleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}
	default:
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: config.CleanupInterval,
		})
	}

	instance := limiter.New(store, rate)
	log := zap.L().Named("ratelimit")

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			log.Warn("rate limit exceeded",
				zap.String("endpoint", config.Endpoint),
				zap.String("client_ip", c.ClientIP()))
			if wantsHTML(c) {
				c.HTML(http.StatusTooManyRequests, "error.html", gin.H{
					"error": "Too many requests. Please try again later.",
				})
			} else {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests. Please try again later.",
				})
			}
			c.Abort()
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// Fail open: an unavailable limiter store must not lock users out
			log.Error("rate limiter store error", zap.String("endpoint", config.Endpoint), zap.Error(err))
			c.Next()
		}),
	), nil
}
