package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-authgate/budgetgate/internal/config"
	"github.com/go-authgate/budgetgate/internal/ledger"
	"github.com/go-authgate/budgetgate/internal/store"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Named("server").Fatal("failed to start server", zap.Error(err))
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log := zap.L().Named("server")
		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
			return err
		}

		log.Info("server exited")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := redisClient.Close(); err != nil {
			zap.L().Named("server").Error("error closing Redis client", zap.Error(err))
			return err
		}
		zap.L().Named("server").Info("Redis connection closed")
		return nil
	})
}

// addDatabaseShutdownJob closes the connection pool on shutdown
func addDatabaseShutdownJob(m *graceful.Manager, db *store.Store) {
	m.AddShutdownJob(func() error {
		if err := db.Close(); err != nil {
			zap.L().Named("server").Error("error closing database", zap.Error(err))
			return err
		}
		return nil
	})
}

// addLedgerPruneJob adds the periodic sweep of expired tokens and
// authorization codes. Every ledger operation prunes as well; this job keeps
// an idle ledger small.
func addLedgerPruneJob(m *graceful.Manager, cfg *config.Config, l *ledger.Ledger) {
	if cfg.PruneInterval <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.PruneInterval)
		defer ticker.Stop()

		// Run once immediately on startup
		pruneLedger(ctx, l)

		for {
			select {
			case <-ticker.C:
				pruneLedger(ctx, l)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func pruneLedger(ctx context.Context, l *ledger.Ledger) {
	log := zap.L().Named("prune")
	result, err := l.PruneExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("failed to prune ledger", zap.Error(err))
		}
		return
	}
	if result.Tokens > 0 || result.AuthCodes > 0 {
		log.Info("pruned expired ledger rows",
			zap.Int64("tokens", result.Tokens),
			zap.Int64("auth_codes", result.AuthCodes))
	}
}
