package auth

import (
	"fmt"

	"github.com/go-authgate/budgetgate/internal/core"
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", core.ErrAuthenticationFailed)
	ErrInvalidClient      = fmt.Errorf("%w: invalid client credentials", core.ErrAuthenticationFailed)

	ErrUserNotFound     = fmt.Errorf("user %w", core.ErrNotFound)
	ErrUsernameConflict = fmt.Errorf("%w: username already exists", core.ErrConflict)
	ErrInvalidUsername  = fmt.Errorf("%w: username must be 3-64 characters of letters, digits, '.', '_', '-' or '@'", core.ErrValidationFailed)
	ErrWeakPassword     = fmt.Errorf("%w: password must be at least %d characters", core.ErrValidationFailed, MinPasswordLength)
	ErrInvalidRole      = fmt.Errorf("%w: role must be \"user\" or \"admin\"", core.ErrValidationFailed)
	ErrInvalidScopes    = fmt.Errorf("%w: scopes must be non-empty tags of letters, digits, ':', '_' or '-'", core.ErrValidationFailed)

	ErrClientNotFound    = fmt.Errorf("client %w", core.ErrNotFound)
	ErrClientConflict    = fmt.Errorf("%w: client_id already exists", core.ErrConflict)
	ErrInvalidClientID   = fmt.Errorf("%w: client_id must be 3-128 characters of letters, digits, '.', '_' or '-'", core.ErrValidationFailed)
	ErrShortClientSecret = fmt.Errorf("%w: client secret must be at least %d characters", core.ErrValidationFailed, MinClientSecretLength)
	ErrInvalidRedirect   = fmt.Errorf("%w: invalid redirect URI", core.ErrValidationFailed)
)
