package token

import (
	"fmt"

	"github.com/go-authgate/budgetgate/internal/core"
)

var (
	// ErrTokenGeneration indicates token signing or ledger recording failed;
	// no token is handed out in that case
	ErrTokenGeneration = fmt.Errorf("%w: failed to generate token", core.ErrInternalFailure)

	// ErrInvalidToken indicates a malformed token, bad signature, wrong
	// issuer/audience/type, or malformed identifier. Logged as suspicious.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", core.ErrAuthenticationFailed)

	// ErrExpiredToken indicates the token has expired; clients may refresh
	ErrExpiredToken = fmt.Errorf("%w: token expired", core.ErrAuthenticationFailed)

	// ErrRevokedToken indicates the token identifier was revoked; clients must re-authenticate
	ErrRevokedToken = fmt.Errorf("%w: token revoked", core.ErrAuthenticationFailed)

	// ErrInsufficientScope indicates a valid token lacking the required scope
	ErrInsufficientScope = fmt.Errorf("%w: insufficient scope", core.ErrAuthorizationDenied)
)
