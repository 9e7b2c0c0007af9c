package services

import (
	"fmt"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/core"
	"github.com/go-authgate/budgetgate/internal/ledger"
)

// OAuth2 and login errors. Each wraps a core taxonomy error so handlers can
// map it to an HTTP status with errors.Is.
var (
	ErrMissingCredentials      = fmt.Errorf("%w: username and password are required", core.ErrValidationFailed)
	ErrInvalidRequest          = fmt.Errorf("%w: invalid_request", core.ErrValidationFailed)
	ErrUnknownClient           = fmt.Errorf("%w: unknown client_id", core.ErrValidationFailed)
	ErrInvalidRedirectURI      = fmt.Errorf("%w: redirect_uri is not registered for this client", core.ErrValidationFailed)
	ErrUnsupportedResponseType = fmt.Errorf("%w: response_type must be \"code\"", core.ErrValidationFailed)
	ErrUnsupportedGrantType    = fmt.Errorf("%w: unsupported grant_type", core.ErrValidationFailed)
	ErrInvalidScope            = fmt.Errorf("%w: requested scope is not allowed", core.ErrValidationFailed)
	ErrAccountDisabled         = fmt.Errorf("%w: account is disabled or no longer exists", core.ErrAuthenticationFailed)

	// ErrInvalidClient is returned when client credentials do not verify
	ErrInvalidClient = auth.ErrInvalidClient
	// ErrInvalidGrant is returned for unknown, expired, mismatched or reused authorization codes
	ErrInvalidGrant = ledger.ErrInvalidGrant
)
