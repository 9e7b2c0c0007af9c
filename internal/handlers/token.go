package handlers

import (
	"net/http"

	"github.com/go-authgate/budgetgate/internal/services"
	"github.com/go-authgate/budgetgate/internal/token"

	"github.com/gin-gonic/gin"
)

// TokenHandler serves the token endpoint.
type TokenHandler struct {
	authorizationService *services.AuthorizationService
}

func NewTokenHandler(as *services.AuthorizationService) *TokenHandler {
	return &TokenHandler{authorizationService: as}
}

// Token handles POST /oauth/token for the authorization_code and
// refresh_token grants. Client authentication is accepted via HTTP Basic
// Auth (preferred per RFC 6749 §2.3.1) or as client_id / client_secret form
// parameters.
func (h *TokenHandler) Token(c *gin.Context) {
	clientID, clientSecret, ok := c.Request.BasicAuth()
	if !ok {
		clientID = c.PostForm("client_id")
		clientSecret = c.PostForm("client_secret")
	}
	if clientID == "" || clientSecret == "" {
		c.Header("WWW-Authenticate", `Basic realm="budgetgate"`)
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             errInvalidClient,
			"error_description": "Client authentication required: use HTTP Basic Auth or provide client_id and client_secret in the request body",
		})
		return
	}

	ctx := c.Request.Context()
	var (
		bundle *token.Bundle
		err    error
	)
	switch grantType := c.PostForm("grant_type"); grantType {
	case services.GrantAuthorizationCode:
		bundle, err = h.authorizationService.ExchangeCode(ctx,
			clientID, clientSecret, c.PostForm("code"), c.PostForm("redirect_uri"))
	case services.GrantRefreshToken:
		bundle, err = h.authorizationService.RefreshGrant(ctx,
			clientID, clientSecret, c.PostForm("refresh_token"))
	case "":
		err = services.ErrInvalidRequest
	default:
		err = services.ErrUnsupportedGrantType
	}
	if err != nil {
		respondOAuthError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, bundle)
}
