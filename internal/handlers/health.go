package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker is satisfied by *store.Store.
type HealthChecker interface {
	Health(ctx context.Context) error
	Backend() string
}

// HealthHandler reports liveness of the service and its database.
type HealthHandler struct {
	db      HealthChecker
	timeout time.Duration
}

func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second}
}

// Health handles GET /health. It answers 503 until the schema is ready and
// whenever the database stops answering pings.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.db.Health(ctx); err != nil {
		zap.L().Named("health").Warn("database unhealthy", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
			"backend":  h.db.Backend(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
		"backend":  h.db.Backend(),
	})
}
