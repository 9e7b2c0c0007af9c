package bootstrap

import (
	"errors"
	"fmt"

	"github.com/go-authgate/budgetgate/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// validateAllConfiguration validates all configuration settings. Broken
// signing secrets are reported on their own so the operator sees them first.
func validateAllConfiguration(cfg *config.Config) error {
	if err := cfg.ValidateSecrets(); err != nil {
		return fmt.Errorf("invalid signing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// newLogger builds the process logger and installs it as the zap global.
// Production uses JSON output; development uses the console encoder.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.New("invalid LOG_LEVEL: " + cfg.LogLevel)
	}

	var zc zap.Config
	if cfg.IsProduction {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
