package handlers

import (
	"errors"
	"net/http"

	"github.com/go-authgate/budgetgate/internal/auth"
	"github.com/go-authgate/budgetgate/internal/middleware"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/services"
	"github.com/go-authgate/budgetgate/internal/templates"
	"github.com/go-authgate/budgetgate/internal/token"
	"github.com/go-authgate/budgetgate/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *services.AuthService
	baseURL     string
}

func NewAuthHandler(as *services.AuthService, baseURL string) *AuthHandler {
	return &AuthHandler{
		authService: as,
		baseURL:     baseURL,
	}
}

// LoginRequest is the body of POST /auth/login: either credentials or a refresh token.
type LoginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest is the optional body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// APILogin handles POST /auth/login. A refresh_token in the body rotates that
// token; otherwise username and password are verified.
func (h *AuthHandler) APILogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errInvalidRequest,
			"error_description": "Request body must be JSON",
		})
		return
	}

	ctx := c.Request.Context()
	var (
		bundle *token.Bundle
		err    error
	)
	if req.RefreshToken != "" {
		bundle, err = h.authService.Refresh(ctx, req.RefreshToken)
	} else {
		bundle, err = h.authService.Login(ctx, req.Username, req.Password)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, bundle)
}

// APILogout handles POST /auth/logout. It runs behind RequireBearer and
// always revokes the presented access token; a refresh token in the body is
// revoked when it can be.
func (h *AuthHandler) APILogout(c *gin.Context) {
	var req LogoutRequest
	if c.Request.ContentLength != 0 {
		// A malformed body only means there is no refresh token to revoke
		_ = c.ShouldBindJSON(&req)
	}

	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "Bearer token required",
		})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims, req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me handles GET /auth/me and returns the verified identity of the caller.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "Bearer token required",
		})
		return
	}
	resp := gin.H{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
		"scope":    claims.Scope,
		"scopes":   claims.Scopes,
		"jti":      claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Unix()
	}
	c.JSON(http.StatusOK, resp)
}

// LoginPage renders the browser login form (GET /login).
func (h *AuthHandler) LoginPage(c *gin.Context) {
	redirectTo := c.Query("redirect")
	if !util.IsRedirectSafe(redirectTo, h.baseURL) {
		redirectTo = ""
	}

	session := sessions.Default(c)
	if userID, ok := session.Get(middleware.SessionUserID).(string); ok && userID != "" {
		user, err := h.authService.CurrentUser(c.Request.Context(), userID)
		if err == nil {
			if redirectTo != "" {
				c.Redirect(http.StatusFound, redirectTo)
				return
			}
			c.HTML(http.StatusOK, "logged_in.html", templates.LoggedInPageProps{
				BaseProps: templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
				Username:  user.Username,
				IsAdmin:   user.IsAdmin(),
			})
			return
		}
		session.Delete(middleware.SessionUserID)
		_ = session.Save()
	}

	c.HTML(http.StatusOK, "login.html", templates.LoginPageProps{
		BaseProps: templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
		Redirect:  redirectTo,
	})
}

// Login handles the login form submission (POST /login).
func (h *AuthHandler) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	redirectTo := c.PostForm("redirect")

	if !util.IsRedirectSafe(redirectTo, h.baseURL) {
		redirectTo = ""
	}

	id, err := h.authService.LoginSession(c.Request.Context(), username, password)
	if err != nil {
		status := http.StatusUnauthorized
		msg := "Invalid username or password"
		switch {
		case errors.Is(err, services.ErrMissingCredentials):
			status, msg = http.StatusBadRequest, "Username and password are required"
		case !errors.Is(err, auth.ErrInvalidCredentials):
			zap.L().Named("auth").Error("session login failed", zap.Error(err))
			status, msg = http.StatusInternalServerError, "Sign in is temporarily unavailable"
		}
		c.HTML(status, "login.html", templates.LoginPageProps{
			BaseProps: templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
			Username:  username,
			Error:     msg,
			Redirect:  redirectTo,
		})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserID, id.UserID)
	if err := session.Save(); err != nil {
		zap.L().Named("auth").Error("save session", zap.Error(err))
		c.HTML(http.StatusInternalServerError, "login.html", templates.LoginPageProps{
			BaseProps: templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
			Error:     "Failed to create session",
			Redirect:  redirectTo,
		})
		return
	}

	if redirectTo == "" {
		redirectTo = middleware.LoginPath
	}
	c.Redirect(http.StatusFound, redirectTo)
}

// Logout clears the browser session (GET /logout).
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = session.Save()
	c.Redirect(http.StatusFound, middleware.LoginPath)
}

// principalID returns the acting user's id for admin logs.
func principalID(c *gin.Context) string {
	if p := models.GetPrincipalFromContext(c); p != nil {
		return p.UserID
	}
	return ""
}
