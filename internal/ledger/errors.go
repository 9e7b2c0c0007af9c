package ledger

import (
	"fmt"

	"github.com/go-authgate/budgetgate/internal/core"
)

var (
	// ErrInvalidJTI is returned when a token identifier is not a canonical UUIDv4
	// (optionally with the refresh suffix). Revocation of such identifiers fails fast.
	ErrInvalidJTI = fmt.Errorf("%w: malformed token identifier", core.ErrValidationFailed)

	// ErrInvalidGrant is returned when an authorization code is absent,
	// expired, already redeemed, or bound to another client or redirect URI.
	ErrInvalidGrant = fmt.Errorf("%w: invalid authorization code", core.ErrAuthenticationFailed)

	// ErrAlreadyRevoked is returned by ConsumeRefresh when the identifier was
	// already revoked, typically by an earlier rotation.
	ErrAlreadyRevoked = fmt.Errorf("%w: token already revoked", core.ErrAuthenticationFailed)
)
