package bootstrap

import (
	"fmt"

	"github.com/go-authgate/budgetgate/internal/config"
	"github.com/go-authgate/budgetgate/internal/metrics"
	"github.com/go-authgate/budgetgate/internal/store"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// initializeDatabase opens the configured backend. Networked backends finish
// schema initialization in the background; queries wait for it.
func initializeDatabase(cfg *config.Config) (*store.Store, error) {
	level := logger.Warn
	if cfg.LogLevel == "debug" {
		level = logger.Info
	}

	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN,
		store.WithInitTimeout(cfg.DBInitTimeout),
		store.WithLogLevel(level),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	zap.L().Named("bootstrap").Info("database opened",
		zap.String("driver", db.Backend()))
	return db, nil
}

// initializeMetrics returns the Prometheus recorder or a no-op one
func initializeMetrics(cfg *config.Config) metrics.Recorder {
	m := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		zap.L().Named("bootstrap").Info("Prometheus metrics initialized")
	} else {
		zap.L().Named("bootstrap").Info("metrics disabled (using noop implementation)")
	}
	return m
}
