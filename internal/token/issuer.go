package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-authgate/budgetgate/internal/core"
	"github.com/go-authgate/budgetgate/internal/ledger"
	"github.com/go-authgate/budgetgate/internal/metrics"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Ledger is the revocation bookkeeping the issuer depends on.
type Ledger interface {
	RecordPair(ctx context.Context, accessJTI string, accessExpiresAt, refreshExpiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	MarkRevokedUntil(ctx context.Context, jti string, expiresAt time.Time) error
	ConsumeRefresh(ctx context.Context, jti string, expiresAt time.Time) error
}

// Config holds the signing material and lifetimes for both token families.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

// Issuer mints and verifies access and refresh tokens. The two families are
// signed with separate keys so one leaked key cannot forge the other.
type Issuer struct {
	cfg     Config
	ledger  Ledger
	now     core.Clock
	metrics core.Recorder
}

// NewIssuer creates a token issuer. A nil clock uses the system clock and a
// nil recorder disables metrics.
func NewIssuer(cfg Config, l Ledger, clock core.Clock, recorder core.Recorder) *Issuer {
	if clock == nil {
		clock = core.SystemClock
	}
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &Issuer{cfg: cfg, ledger: l, now: clock, metrics: recorder}
}

func (i *Issuer) log() *zap.Logger {
	return zap.L().Named("token")
}

// IssueTokens mints an access/refresh pair for sub. Both identifiers are
// recorded in the ledger before anything is returned; if recording fails no
// token is handed out.
func (i *Issuer) IssueTokens(ctx context.Context, sub Subject, grantType string) (*Bundle, error) {
	start := time.Now()
	now := i.now()
	accessJTI := ledger.NewJTI()
	if !ledger.ValidJTI(accessJTI) {
		return nil, fmt.Errorf("%w: generated malformed identifier", ErrTokenGeneration)
	}
	refreshJTI := ledger.RefreshJTI(accessJTI)
	accessExp := now.Add(i.cfg.AccessTTL)
	refreshExp := now.Add(i.cfg.RefreshTTL)
	scope := strings.Join(sub.Scopes, " ")

	access, err := i.sign(&Claims{
		UserID:           sub.UserID,
		Username:         sub.Username,
		Role:             sub.Role,
		Scope:            scope,
		Scopes:           sub.Scopes,
		ClientID:         sub.ClientID,
		Type:             typeAccess,
		RegisteredClaims: i.registered(sub.UserID, accessJTI, now, accessExp),
	}, i.cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	refreshClaims := &Claims{
		UserID:           sub.UserID,
		Username:         sub.Username,
		ClientID:         sub.ClientID,
		Type:             typeRefresh,
		RegisteredClaims: i.registered(sub.UserID, refreshJTI, now, refreshExp),
	}
	if sub.ClientID != "" {
		refreshClaims.GrantScope = scope
	}
	refresh, err := i.sign(refreshClaims, i.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	if err := i.ledger.RecordPair(ctx, accessJTI, accessExp, refreshExp); err != nil {
		i.log().Error("record issued tokens", zap.String("user_id", sub.UserID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTokenGeneration, err)
	}

	elapsed := time.Since(start)
	i.metrics.RecordTokenIssued(typeAccess, grantType, elapsed)
	i.metrics.RecordTokenIssued(typeRefresh, grantType, elapsed)

	return &Bundle{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(i.cfg.AccessTTL.Seconds()),
		TokenType:    TokenTypeBearer,
		Scope:        scope,
		AccessJTI:    accessJTI,
	}, nil
}

func (i *Issuer) registered(sub, jti string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    i.cfg.Issuer,
		Subject:   sub,
		Audience:  jwt.ClaimStrings{i.cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        jti,
	}
}

func (i *Issuer) sign(claims *Claims, key []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and its ledger status.
func (i *Issuer) VerifyAccess(ctx context.Context, tokenString string) (*Claims, error) {
	return i.verify(ctx, tokenString, i.cfg.AccessSecret, typeAccess)
}

// VerifyRefresh validates a refresh token and its ledger status.
func (i *Issuer) VerifyRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	return i.verify(ctx, tokenString, i.cfg.RefreshSecret, typeRefresh)
}

// verify checks signature, issuer, audience and expiry before touching the
// ledger, so tampered tokens never cause a database lookup.
func (i *Issuer) verify(
	ctx context.Context,
	tokenString string,
	key []byte,
	wantType string,
) (*Claims, error) {
	start := time.Now()
	claims, err := i.parse(tokenString, key, wantType, false)
	if err != nil {
		i.recordValidation(err, start)
		return nil, err
	}

	revoked, err := i.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		i.metrics.RecordTokenValidation("error", time.Since(start))
		return nil, err
	}
	if revoked {
		i.metrics.RecordTokenValidation("revoked", time.Since(start))
		return nil, ErrRevokedToken
	}

	i.metrics.RecordTokenValidation("valid", time.Since(start))
	return claims, nil
}

func (i *Issuer) recordValidation(err error, start time.Time) {
	result := "invalid"
	if errors.Is(err, ErrExpiredToken) {
		result = "expired"
	}
	i.metrics.RecordTokenValidation(result, time.Since(start))
}

// parse verifies the token cryptographically and structurally. When
// allowExpired is set an expired but otherwise valid token is accepted,
// which lets logout revoke what it was handed.
func (i *Issuer) parse(tokenString string, key []byte, wantType string, allowExpired bool) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(i.cfg.Leeway),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if !onlyExpired(err) {
			i.suspicious("token rejected", err)
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if !allowExpired {
			return nil, ErrExpiredToken
		}
	}

	if claims.Type != wantType || claims.UserID == "" ||
		!ledger.ValidJTI(claims.ID) || ledger.IsRefreshJTI(claims.ID) != (wantType == typeRefresh) {
		i.suspicious("token claims rejected", nil,
			zap.String("type", claims.Type), zap.String("jti", claims.ID))
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// onlyExpired reports whether expiry is the sole reason err rejected the
// token. The validator joins every failed check into one error.
func onlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func (i *Issuer) suspicious(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	i.log().Warn(msg, append(fields, zap.Bool("suspicious", true))...)
}

// RevokeAccess revokes an access token identified by its verified claims
// together with its paired refresh identifier.
func (i *Issuer) RevokeAccess(ctx context.Context, claims *Claims, reason string) error {
	exp := i.expiry(claims)
	if err := i.ledger.MarkRevokedUntil(ctx, claims.ID, exp); err != nil {
		return err
	}
	i.metrics.RecordTokenRevoked(typeAccess, reason)

	// The refresh half may outlive the access token
	refreshExp := i.issuedAt(claims).Add(i.cfg.RefreshTTL)
	if err := i.ledger.MarkRevokedUntil(ctx, ledger.RefreshJTI(claims.ID), refreshExp); err != nil {
		return err
	}
	i.metrics.RecordTokenRevoked(typeRefresh, reason)
	return nil
}

// RevokeRefresh revokes a refresh token presented as a string. Expired tokens
// are accepted; a token with a bad signature is rejected with ErrInvalidToken.
func (i *Issuer) RevokeRefresh(ctx context.Context, tokenString, reason string) error {
	claims, err := i.parse(tokenString, i.cfg.RefreshSecret, typeRefresh, true)
	if err != nil {
		return err
	}
	if err := i.ledger.MarkRevokedUntil(ctx, claims.ID, i.expiry(claims)); err != nil {
		return err
	}
	i.metrics.RecordTokenRevoked(typeRefresh, reason)
	return nil
}

// ConsumeRefresh burns a verified refresh token for rotation. A token that
// was already consumed is reported as revoked; since that means a copy of it
// was replayed, the access token it was paired with is revoked as well.
func (i *Issuer) ConsumeRefresh(ctx context.Context, claims *Claims) error {
	err := i.ledger.ConsumeRefresh(ctx, claims.ID, i.expiry(claims))
	switch {
	case err == nil:
		i.metrics.RecordTokenRevoked(typeRefresh, "rotation")
		return nil
	case errors.Is(err, ledger.ErrAlreadyRevoked):
		i.log().Warn("refresh token reuse detected",
			zap.String("user_id", claims.UserID),
			zap.String("jti", claims.ID),
			zap.Bool("suspicious", true))
		accessJTI := ledger.AccessJTI(claims.ID)
		if rerr := i.ledger.MarkRevokedUntil(ctx, accessJTI, i.issuedAt(claims).Add(i.cfg.AccessTTL)); rerr != nil {
			i.log().Error("revoke access token after refresh reuse", zap.Error(rerr))
		}
		return ErrRevokedToken
	case errors.Is(err, ledger.ErrInvalidJTI):
		return ErrInvalidToken
	default:
		return err
	}
}

func (i *Issuer) expiry(claims *Claims) time.Time {
	if claims.ExpiresAt == nil {
		return i.now().Add(i.cfg.RefreshTTL)
	}
	return claims.ExpiresAt.Time
}

func (i *Issuer) issuedAt(claims *Claims) time.Time {
	if claims.IssuedAt == nil {
		return i.now()
	}
	return claims.IssuedAt.Time
}
