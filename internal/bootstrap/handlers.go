package bootstrap

import (
	"github.com/go-authgate/budgetgate/internal/config"
	"github.com/go-authgate/budgetgate/internal/handlers"
	"github.com/go-authgate/budgetgate/internal/middleware"
	"github.com/go-authgate/budgetgate/internal/store"
)

// handlerSet holds all HTTP handlers and the authenticator the auth
// middlewares consult
type handlerSet struct {
	auth          *handlers.AuthHandler
	authorization *handlers.AuthorizationHandler
	token         *handlers.TokenHandler
	client        *handlers.ClientHandler
	user          *handlers.UserHandler
	health        *handlers.HealthHandler
	authn         middleware.Authenticator
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(cfg *config.Config, db *store.Store, s serviceSet) handlerSet {
	return handlerSet{
		auth:          handlers.NewAuthHandler(s.auth, cfg.BaseURL),
		authorization: handlers.NewAuthorizationHandler(s.authorization),
		token:         handlers.NewTokenHandler(s.authorization),
		client:        handlers.NewClientHandler(s.client),
		user:          handlers.NewUserHandler(s.user),
		health:        handlers.NewHealthHandler(db),
		authn:         s.auth,
	}
}
