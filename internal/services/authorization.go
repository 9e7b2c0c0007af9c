package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/core"
	"github.com/go-authgate/budgetgate/internal/ledger"
	"github.com/go-authgate/budgetgate/internal/metrics"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/token"
	"github.com/go-authgate/budgetgate/internal/util"

	"go.uber.org/zap"
)

// AuthorizeRequest holds the raw query parameters of an authorization request.
type AuthorizeRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
}

// AuthorizationGrant is a validated authorization request.
type AuthorizationGrant struct {
	Client      *models.Client
	RedirectURI string
	Scopes      []string
	State       string
}

// AuthorizationService manages the OAuth 2.0 Authorization Code Flow (RFC 6749)
type AuthorizationService struct {
	creds   *auth.CredentialStore
	ledger  *ledger.Ledger
	issuer  *token.Issuer
	authSvc *AuthService
	codeTTL time.Duration
	now     core.Clock
	metrics core.Recorder
}

func NewAuthorizationService(
	creds *auth.CredentialStore,
	l *ledger.Ledger,
	issuer *token.Issuer,
	authSvc *AuthService,
	codeTTL time.Duration,
	clock core.Clock,
	recorder core.Recorder,
) *AuthorizationService {
	if clock == nil {
		clock = core.SystemClock
	}
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &AuthorizationService{
		creds:   creds,
		ledger:  l,
		issuer:  issuer,
		authSvc: authSvc,
		codeTTL: codeTTL,
		now:     clock,
		metrics: recorder,
	}
}

func (s *AuthorizationService) log() *zap.Logger {
	return zap.L().Named("oauth")
}

// ValidateAuthorize checks an authorization request. The redirect URI must
// match a registered URI exactly; until it does, errors must be shown to the
// user rather than sent to the redirect URI.
func (s *AuthorizationService) ValidateAuthorize(
	ctx context.Context,
	req AuthorizeRequest,
) (*AuthorizationGrant, error) {
	// 1. Client must be well-formed and registered
	if !auth.ValidClientID(req.ClientID) {
		return nil, ErrUnknownClient
	}
	client, err := s.creds.GetClient(ctx, req.ClientID)
	if errors.Is(err, auth.ErrClientNotFound) {
		return nil, ErrUnknownClient
	}
	if err != nil {
		return nil, err
	}

	// 2. redirect_uri must exactly match one of the registered URIs
	if !client.AllowsRedirect(req.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	// 3. response_type must be "code"
	if req.ResponseType != "code" {
		return nil, ErrUnsupportedResponseType
	}

	// 4. Scope must be a subset of the client's allowed scopes
	allowed := client.ScopeList()
	requested := strings.Fields(req.Scope)
	if len(requested) == 0 {
		requested = allowed
	}
	for _, sc := range requested {
		if !slices.Contains(allowed, sc) {
			return nil, ErrInvalidScope
		}
	}

	return &AuthorizationGrant{
		Client:      client,
		RedirectURI: req.RedirectURI,
		Scopes:      requested,
		State:       req.State,
	}, nil
}

// IssueCode creates a one-time authorization code for the session user and
// returns the URL to redirect the user agent to. The granted scope is the
// requested scope narrowed to what the user currently holds.
func (s *AuthorizationService) IssueCode(
	ctx context.Context,
	grant *AuthorizationGrant,
	userID string,
) (string, error) {
	user, err := s.authSvc.activeUser(ctx, userID)
	if err != nil {
		return "", err
	}
	granted := intersectScopes(grant.Scopes, user.ScopeList())
	if len(granted) == 0 {
		return "", ErrInvalidScope
	}

	target, err := url.Parse(grant.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRedirectURI, err)
	}

	// 32 random bytes, 64 hex characters
	raw, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("%w: generate authorization code: %w", core.ErrInternalFailure, err)
	}
	code := hex.EncodeToString(raw)

	err = s.ledger.RecordAuthCode(ctx, code, ledger.AuthCodeGrant{
		ClientID:    grant.Client.ClientID,
		UserID:      user.ID,
		RedirectURI: grant.RedirectURI,
		Scope:       strings.Join(granted, " "),
	}, s.now().Add(s.codeTTL))
	if err != nil {
		return "", err
	}
	s.metrics.RecordAuthCodeIssued()

	q := target.Query()
	q.Set("code", code)
	if grant.State != "" {
		q.Set("state", grant.State)
	}
	target.RawQuery = q.Encode()
	return target.String(), nil
}

// ExchangeCode implements the authorization_code grant. The client is
// authenticated first; the code is then redeemed, which deletes it whether or
// not the rest of the exchange succeeds.
func (s *AuthorizationService) ExchangeCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI string,
) (*token.Bundle, error) {
	if code == "" || redirectURI == "" {
		return nil, ErrInvalidRequest
	}
	if _, err := s.creds.AuthenticateClient(ctx, clientID, clientSecret); err != nil {
		s.metrics.RecordAuthCodeExchanged("invalid_client")
		return nil, err
	}

	record, err := s.ledger.RedeemAuthCode(ctx, code, clientID, redirectURI)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidGrant) {
			s.metrics.RecordAuthCodeExchanged("invalid_grant")
			s.log().Info("authorization code rejected", zap.String("client_id", clientID))
		}
		return nil, err
	}

	user, err := s.authSvc.activeUser(ctx, record.UserID)
	if errors.Is(err, ErrAccountDisabled) {
		s.metrics.RecordAuthCodeExchanged("invalid_grant")
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}

	sub := subjectFor(user)
	sub.ClientID = record.ClientID
	sub.Scopes = intersectScopes(strings.Fields(record.Scope), sub.Scopes)
	bundle, err := s.issuer.IssueTokens(ctx, sub, GrantAuthorizationCode)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthCodeExchanged("success")
	return bundle, nil
}

// RefreshGrant implements the refresh_token grant. The refresh token must
// have been issued to the authenticated client, and the new pair never carries
// more scope than the original grant or the client's current allow-list.
func (s *AuthorizationService) RefreshGrant(
	ctx context.Context,
	clientID, clientSecret, refreshToken string,
) (*token.Bundle, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRequest
	}
	client, err := s.creds.AuthenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	bundle, err := s.authSvc.refresh(ctx, refreshToken, client)
	s.metrics.RecordTokenRefresh(err == nil)
	return bundle, err
}

// intersectScopes keeps the scopes of requested that held also contains,
// preserving the requested order.
func intersectScopes(requested, held []string) []string {
	out := make([]string, 0, len(requested))
	for _, sc := range requested {
		if slices.Contains(held, sc) && !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	return out
}
