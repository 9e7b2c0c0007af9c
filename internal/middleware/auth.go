package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// SessionUserID is the session key holding the logged-in user's id
	SessionUserID = "user_id"

	// ClaimsContextKey holds the verified *token.Claims of a bearer request
	ClaimsContextKey = "token_claims"

	// LoginPath is where browser callers are sent to establish a session
	LoginPath = "/login"
)

// Authenticator is what the auth middlewares need from the auth service.
type Authenticator interface {
	VerifyAndAuthorize(ctx context.Context, accessToken, requiredScope string) (*token.Claims, error)
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, tok, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// GetClaims returns the verified bearer claims stored by RequireBearer or DualAuth.
func GetClaims(c *gin.Context) *token.Claims {
	if v, ok := c.Get(ClaimsContextKey); ok {
		if claims, ok := v.(*token.Claims); ok {
			return claims
		}
	}
	return nil
}

func principalFromClaims(claims *token.Claims) *models.Principal {
	return &models.Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		Scopes:   claims.Scopes,
		TokenID:  claims.ID,
		Source:   models.SourceBearer,
	}
}

func setPrincipal(c *gin.Context, p *models.Principal) {
	c.Set(models.PrincipalContextKey, p)
	c.Request = c.Request.WithContext(models.SetPrincipalContext(c.Request.Context(), p))
}

// RequireBearer admits only requests carrying a valid access token. When
// requiredScope is set the token must also hold that scope.
func RequireBearer(authn Authenticator, requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := BearerToken(c)
		if !ok {
			challenge(c, nil)
			return
		}
		claims, err := authn.VerifyAndAuthorize(c.Request.Context(), raw, requiredScope)
		if err != nil {
			challenge(c, err)
			return
		}
		c.Set(ClaimsContextKey, claims)
		setPrincipal(c, principalFromClaims(claims))
		c.Next()
	}
}

// DualAuth accepts a bearer token or a browser session. A bearer token is
// tried first; if it is missing or fails, the session is consulted and the
// user's role is re-read from storage so changes apply without a new login.
// Browser callers without either are redirected to the login page, API
// callers get a 401 challenge.
func DualAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var bearerErr error
		if raw, ok := BearerToken(c); ok {
			claims, err := authn.VerifyAndAuthorize(ctx, raw, "")
			if err == nil {
				c.Set(ClaimsContextKey, claims)
				setPrincipal(c, principalFromClaims(claims))
				c.Next()
				return
			}
			bearerErr = err
		}

		session := sessions.Default(c)
		if userID, ok := session.Get(SessionUserID).(string); ok && userID != "" {
			user, err := authn.CurrentUser(ctx, userID)
			if err == nil {
				setPrincipal(c, &models.Principal{
					UserID:   user.ID,
					Username: user.Username,
					Role:     user.Role,
					Scopes:   user.ScopeList(),
					Source:   models.SourceSession,
				})
				c.Next()
				return
			}
			zap.L().Named("auth").Info("dropping session for unavailable user",
				zap.String("user_id", userID), zap.Error(err))
			session.Delete(SessionUserID)
			_ = session.Save()
		}

		if wantsHTML(c) {
			redirectToLogin(c)
			return
		}
		challenge(c, bearerErr)
	}
}

// RequireAdmin rejects authenticated principals without the admin role.
// It must run after RequireBearer or DualAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := models.GetPrincipalFromContext(c)
		if p == nil {
			challenge(c, nil)
			return
		}
		if !p.IsAdmin() {
			forbidden(c, "Admin access required")
			return
		}
		c.Next()
	}
}

// RequireScope rejects principals that were not granted scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := models.GetPrincipalFromContext(c)
		if p == nil {
			challenge(c, nil)
			return
		}
		if !p.HasScope(scope) {
			c.Header("WWW-Authenticate", `Bearer realm="budgetgate", error="insufficient_scope", scope="`+scope+`"`)
			forbidden(c, "Token lacks the required scope")
			return
		}
		c.Next()
	}
}

// wantsHTML reports whether the caller negotiates for an HTML response.
func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

func redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, LoginPath+"?redirect="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}

// challenge answers 401 with a Bearer challenge describing err.
func challenge(c *gin.Context, err error) {
	desc := "Bearer token required"
	code := "invalid_request"
	switch {
	case err == nil:
	case errors.Is(err, token.ErrExpiredToken):
		code, desc = "invalid_token", "Token expired"
	case errors.Is(err, token.ErrRevokedToken):
		code, desc = "invalid_token", "Token revoked"
	case errors.Is(err, token.ErrInsufficientScope):
		c.Header("WWW-Authenticate", `Bearer realm="budgetgate", error="insufficient_scope"`)
		forbidden(c, "Token lacks the required scope")
		return
	case errors.Is(err, token.ErrInvalidToken):
		code, desc = "invalid_token", "Invalid token"
	default:
		zap.L().Named("auth").Error("token verification failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Token verification failed",
		})
		return
	}

	if err == nil {
		c.Header("WWW-Authenticate", `Bearer realm="budgetgate"`)
	} else {
		c.Header("WWW-Authenticate", `Bearer realm="budgetgate", error="`+code+`", error_description="`+desc+`"`)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             code,
		"error_description": desc,
	})
}

func forbidden(c *gin.Context, msg string) {
	if wantsHTML(c) {
		c.HTML(http.StatusForbidden, "error.html", gin.H{"error": msg})
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":             "access_denied",
		"error_description": msg,
	})
}
