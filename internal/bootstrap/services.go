package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/config"
	"github.com/go-authgate/budgetgate/internal/ledger"
	"github.com/go-authgate/budgetgate/internal/metrics"
	"github.com/go-authgate/budgetgate/internal/services"
	"github.com/go-authgate/budgetgate/internal/store"
	"github.com/go-authgate/budgetgate/internal/token"
)

// serviceSet holds the business layer
type serviceSet struct {
	ledger        *ledger.Ledger
	auth          *services.AuthService
	authorization *services.AuthorizationService
	client        *services.ClientService
	user          *services.UserService
}

// initializeServices creates all business logic services on top of the store
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
) serviceSet {
	creds := auth.NewCredentialStore(db, auth.NewHasher(cfg.PasswordHashCost), nil)

	// Token rows outlive their expiry by the verifier leeway so a revoked
	// token is still known while it can pass the expiry check.
	l := ledger.New(db,
		ledger.WithMetrics(recorder),
		ledger.WithRetention(cfg.TokenLeeway),
	)

	issuer := token.NewIssuer(token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		Issuer:        cfg.TokenIssuer,
		Audience:      cfg.TokenAudience,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Leeway:        cfg.TokenLeeway,
	}, l, nil, recorder)

	authService := services.NewAuthService(creds, issuer, recorder)
	return serviceSet{
		ledger: l,
		auth:   authService,
		authorization: services.NewAuthorizationService(
			creds, l, issuer, authService, cfg.AuthCodeTTL, nil, recorder,
		),
		client: services.NewClientService(creds),
		user:   services.NewUserService(creds),
	}
}

// ensureAdmin guarantees the bootstrap administrator exists. It waits for
// schema initialization at most DBInitTimeout.
func ensureAdmin(ctx context.Context, cfg *config.Config, users *services.UserService) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.DBInitTimeout)
	defer cancel()

	if err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	return nil
}
