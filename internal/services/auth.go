package services

import (
	"context"
	"errors"
	"strings"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/core"
	"github.com/go-authgate/budgetgate/internal/metrics"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/token"

	"go.uber.org/zap"
)

// Grant types recorded in metrics
const (
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
	GrantAuthorizationCode = "authorization_code"
)

// AuthService handles first-party login, refresh, logout and token checks.
type AuthService struct {
	creds   *auth.CredentialStore
	issuer  *token.Issuer
	metrics core.Recorder
}

func NewAuthService(
	creds *auth.CredentialStore,
	issuer *token.Issuer,
	recorder core.Recorder,
) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &AuthService{creds: creds, issuer: issuer, metrics: recorder}
}

func (s *AuthService) log() *zap.Logger {
	return zap.L().Named("auth")
}

// Login verifies a username and password and issues a token pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*token.Bundle, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	id, err := s.creds.AuthenticateUser(ctx, username, password)
	if err != nil {
		s.metrics.RecordLogin(models.SourceBearer, false)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.log().Info("login failed", zap.String("username", username))
		}
		return nil, err
	}
	s.metrics.RecordLogin(models.SourceBearer, true)

	return s.issuer.IssueTokens(ctx, token.Subject{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     id.Role,
		Scopes:   id.Scopes,
	}, GrantPassword)
}

// Refresh rotates a first-party refresh token. The user's role and scopes are
// read from storage, not from the presented token, so a downgrade applies
// immediately. The presented token is consumed; presenting it again fails as
// revoked. Tokens issued to an OAuth client are refused here.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.Bundle, error) {
	bundle, err := s.refresh(ctx, refreshToken, nil)
	s.metrics.RecordTokenRefresh(err == nil)
	return bundle, err
}

// refresh verifies and rotates refreshToken. With a nil client only
// first-party tokens are accepted. With a client the token must have been
// issued to it, and the new scope is the original grant narrowed to what the
// user and the client still hold, so a refresh never widens access.
func (s *AuthService) refresh(
	ctx context.Context,
	refreshToken string,
	client *models.Client,
) (*token.Bundle, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRequest
	}
	claims, err := s.issuer.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	wantClient := ""
	if client != nil {
		wantClient = client.ClientID
	}
	if claims.ClientID != wantClient {
		s.log().Warn("refresh token presented by another client",
			zap.String("user_id", claims.UserID),
			zap.String("token_client_id", claims.ClientID),
			zap.String("client_id", wantClient))
		return nil, ErrInvalidGrant
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	sub := subjectFor(user)
	if client != nil {
		sub.ClientID = client.ClientID
		sub.Scopes = intersectScopes(strings.Fields(claims.GrantScope), sub.Scopes)
		sub.Scopes = intersectScopes(sub.Scopes, client.ScopeList())
		if len(sub.Scopes) == 0 {
			return nil, ErrInvalidScope
		}
	}

	if err := s.issuer.ConsumeRefresh(ctx, claims); err != nil {
		return nil, err
	}

	return s.issuer.IssueTokens(ctx, sub, GrantRefreshToken)
}

// activeUser re-reads a user and rejects missing or deactivated accounts.
func (s *AuthService) activeUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.creds.GetUserByID(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, ErrAccountDisabled
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// Logout revokes the access token described by claims, its paired refresh
// identifier, and refreshToken if one was presented. A bad or expired refresh
// token never fails the logout.
func (s *AuthService) Logout(ctx context.Context, claims *token.Claims, refreshToken string) error {
	if err := s.issuer.RevokeAccess(ctx, claims, "logout"); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := s.issuer.RevokeRefresh(ctx, refreshToken, "logout"); err != nil {
			s.log().Info("logout: refresh token not revoked",
				zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}
	s.metrics.RecordLogout()
	return nil
}

// VerifyAndAuthorize verifies an access token and, when requiredScope is set,
// checks that the token was granted it.
func (s *AuthService) VerifyAndAuthorize(
	ctx context.Context,
	accessToken, requiredScope string,
) (*token.Claims, error) {
	claims, err := s.issuer.VerifyAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if requiredScope != "" && !claims.HasScope(requiredScope) {
		return nil, token.ErrInsufficientScope
	}
	return claims, nil
}

// CurrentUser returns the stored user behind a session.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	return s.activeUser(ctx, userID)
}

// LoginSession verifies credentials for the browser login form without
// issuing tokens.
func (s *AuthService) LoginSession(ctx context.Context, username, password string) (*auth.Identity, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	id, err := s.creds.AuthenticateUser(ctx, username, password)
	s.metrics.RecordLogin(models.SourceSession, err == nil)
	return id, err
}

func subjectFor(user *models.User) token.Subject {
	return token.Subject{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Scopes:   user.ScopeList(),
	}
}
