package middleware

import (
	"net/http"

	"github.com/go-authgate/budgetgate/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	csrfTokenKey    = "csrf_token"
	csrfFormField   = "csrf_token"
	csrfHeaderField = "X-CSRF-Token"
)

// CSRFMiddleware protects the browser form routes. A per-session token is
// issued on first visit and must be echoed back on every state-changing request.
func CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		token, _ := session.Get(csrfTokenKey).(string)
		if token == "" {
			var err error
			if token, err = util.RandomURLToken(32); err != nil {
				zap.L().Named("csrf").Error("generate csrf token", zap.Error(err))
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			session.Set(csrfTokenKey, token)
			if err := session.Save(); err != nil {
				zap.L().Named("csrf").Error("save csrf token", zap.Error(err))
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		}

		c.Set(csrfTokenKey, token)

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			submitted := c.PostForm(csrfFormField)
			if submitted == "" {
				submitted = c.GetHeader(csrfHeaderField)
			}
			if submitted == "" || !util.ConstantTimeEqual(submitted, token) {
				c.HTML(http.StatusForbidden, "error.html", gin.H{
					"error": "CSRF token validation failed. Please refresh the page and try again.",
				})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// GetCSRFToken retrieves the CSRF token from the context
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get(csrfTokenKey); exists {
		if tokenStr, ok := token.(string); ok {
			return tokenStr
		}
	}
	return ""
}
