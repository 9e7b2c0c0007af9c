package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-authgate/budgetgate/internal/middleware"
	"github.com/go-authgate/budgetgate/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxStateLength caps the opaque state value echoed back to the client
const maxStateLength = 1024

// AuthorizationHandler serves the authorization endpoint of the code flow.
type AuthorizationHandler struct {
	authorizationService *services.AuthorizationService
}

func NewAuthorizationHandler(as *services.AuthorizationService) *AuthorizationHandler {
	return &AuthorizationHandler{authorizationService: as}
}

// Authorize handles GET /oauth/authorize. The request is validated before the
// session is consulted, so a bad client or redirect URI never reaches the
// login page. Errors are answered directly and never sent to redirect_uri.
func (h *AuthorizationHandler) Authorize(c *gin.Context) {
	state := c.Query("state")
	if len(state) > maxStateLength {
		h.rejectAuthorize(c, services.ErrInvalidRequest)
		return
	}

	grant, err := h.authorizationService.ValidateAuthorize(c.Request.Context(), services.AuthorizeRequest{
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
		ResponseType: c.Query("response_type"),
		Scope:        c.Query("scope"),
		State:        state,
	})
	if err != nil {
		h.rejectAuthorize(c, err)
		return
	}

	session := sessions.Default(c)
	userID, _ := session.Get(middleware.SessionUserID).(string)
	if userID == "" {
		h.redirectToLogin(c)
		return
	}

	target, err := h.authorizationService.IssueCode(c.Request.Context(), grant, userID)
	if errors.Is(err, services.ErrAccountDisabled) {
		session.Delete(middleware.SessionUserID)
		_ = session.Save()
		h.redirectToLogin(c)
		return
	}
	if err != nil {
		h.rejectAuthorize(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

func (h *AuthorizationHandler) redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound,
		middleware.LoginPath+"?redirect="+url.QueryEscape(c.Request.URL.RequestURI()))
}

// rejectAuthorize reports an authorization error to the user agent.
func (h *AuthorizationHandler) rejectAuthorize(c *gin.Context, err error) {
	code, status := authorizeErrorCode(err)
	if status == http.StatusInternalServerError {
		zap.L().Named("oauth").Error("authorization request failed", zap.Error(err))
	}
	desc := err.Error()
	if status == http.StatusInternalServerError {
		desc = "Authorization failed"
	}

	if wantsHTML(c) {
		c.HTML(status, "error.html", gin.H{"error": desc})
		return
	}
	c.JSON(status, gin.H{
		"error":             code,
		"error_description": desc,
	})
}

func authorizeErrorCode(err error) (string, int) {
	switch {
	case errors.Is(err, services.ErrUnknownClient):
		return errInvalidClient, http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidRedirectURI):
		return errInvalidRequest, http.StatusBadRequest
	case errors.Is(err, services.ErrAccountDisabled):
		return "access_denied", http.StatusForbidden
	}
	return oauthErrorCode(err)
}
