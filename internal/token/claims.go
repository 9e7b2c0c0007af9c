package token

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Token type constants
const (
	TokenTypeBearer = "Bearer"

	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims is the JWT payload. Refresh tokens carry identity only; role and
// scope claims are omitted so a refresh token never grants access by itself.
// Tokens minted for an OAuth client name it in client_id, and that client's
// refresh token records the granted scope as the ceiling for later refreshes.
type Claims struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username"`
	Role       string   `json:"role,omitempty"`
	Scope      string   `json:"scope,omitempty"`
	Scopes     []string `json:"scopes,omitempty"`
	ClientID   string   `json:"client_id,omitempty"`
	GrantScope string   `json:"grant_scope,omitempty"`
	Type       string   `json:"type"`
	jwt.RegisteredClaims
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *Claims) IsRefresh() bool {
	return c.Type == typeRefresh
}

// HasScope reports whether the token was granted scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Subject is the identity a token pair is minted for. ClientID is empty for
// first-party logins.
type Subject struct {
	UserID   string
	Username string
	Role     string
	Scopes   []string
	ClientID string
}

// Bundle is the token response returned by login and the token endpoint.
type Bundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`

	// AccessJTI identifies the pair in the ledger
	AccessJTI string `json:"-"`
}
