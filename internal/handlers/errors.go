package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/core"
	"github.com/go-authgate/budgetgate/internal/services"
	"github.com/go-authgate/budgetgate/internal/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RFC 6749 §5.2 error codes
const (
	errInvalidRequest          = "invalid_request"
	errInvalidClient           = "invalid_client"
	errInvalidGrant            = "invalid_grant"
	errUnsupportedGrantType    = "unsupported_grant_type"
	errUnsupportedResponseType = "unsupported_response_type"
	errInvalidScope            = "invalid_scope"
	errServerError             = "server_error"
)

// respondError writes err as JSON with the status of its taxonomy class.
// Internal failures are logged and reported without detail.
func respondError(c *gin.Context, err error) {
	status := core.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		zap.L().Named("http").Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{
			"error":             errServerError,
			"error_description": "Internal server error",
		})
		return
	}
	c.JSON(status, gin.H{
		"error":             errorCode(err, status),
		"error_description": err.Error(),
	})
}

func errorCode(err error, status int) string {
	switch {
	case errors.Is(err, token.ErrExpiredToken),
		errors.Is(err, token.ErrRevokedToken),
		errors.Is(err, token.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	}
	switch status {
	case http.StatusBadRequest:
		return errInvalidRequest
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "access_denied"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return errServerError
	}
}

// respondOAuthError writes an RFC 6749 token endpoint error response.
func respondOAuthError(c *gin.Context, err error) {
	code, status := oauthErrorCode(err)
	if status == http.StatusInternalServerError {
		zap.L().Named("oauth").Error("token request failed", zap.Error(err))
		c.JSON(status, gin.H{
			"error":             errServerError,
			"error_description": "Token issuance failed",
		})
		return
	}
	if code == errInvalidClient {
		// RFC 6749 §5.2: invalid_client answers 401 with a Basic challenge
		c.Header("WWW-Authenticate", `Basic realm="budgetgate"`)
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(status, gin.H{
		"error":             code,
		"error_description": err.Error(),
	})
}

// oauthErrorCode maps service errors to RFC 6749 error codes and statuses.
func oauthErrorCode(err error) (string, int) {
	switch {
	case errors.Is(err, services.ErrInvalidClient):
		return errInvalidClient, http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidGrant),
		errors.Is(err, services.ErrAccountDisabled),
		errors.Is(err, token.ErrExpiredToken),
		errors.Is(err, token.ErrRevokedToken),
		errors.Is(err, token.ErrInvalidToken):
		return errInvalidGrant, http.StatusUnauthorized
	case errors.Is(err, services.ErrUnsupportedGrantType):
		return errUnsupportedGrantType, http.StatusBadRequest
	case errors.Is(err, services.ErrUnsupportedResponseType):
		return errUnsupportedResponseType, http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidScope):
		return errInvalidScope, http.StatusBadRequest
	case errors.Is(err, core.ErrValidationFailed):
		return errInvalidRequest, http.StatusBadRequest
	default:
		return errServerError, http.StatusInternalServerError
	}
}

// wantsHTML reports whether the caller negotiates for an HTML response.
func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}
