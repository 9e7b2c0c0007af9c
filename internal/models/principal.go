package models

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"
)

// Authentication sources for a Principal
const (
	SourceBearer  = "bearer"
	SourceSession = "session"
)

// Principal is the identity attached to an authenticated request.
type Principal struct {
	UserID   string
	Username string
	Role     string
	Scopes   []string
	TokenID  string // jti of the bearer token; empty for session principals
	Source   string
}

// IsAdmin returns true if the principal carries the admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// HasScope reports whether the principal was granted scope.
func (p *Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

// PrincipalContextKey is the gin context key holding the *Principal.
const PrincipalContextKey = "principal"

// SetPrincipalContext returns a copy of ctx carrying p.
func SetPrincipalContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipalFromContext returns the principal stored by the auth middleware, or nil.
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if v, exists := ginCtx.Get(PrincipalContextKey); exists {
			if p, ok := v.(*Principal); ok {
				return p
			}
		}
		ctx = ginCtx.Request.Context()
	}
	if p, ok := ctx.Value(principalKey{}).(*Principal); ok {
		return p
	}
	return nil
}
