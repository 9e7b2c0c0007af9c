package middleware

import (
	"net/http"

	"github.com/go-authgate/budgetgate/internal/util"

	"github.com/gin-gonic/gin"
)

// StaticBearer guards an operational endpoint such as /metrics with a fixed
// shared token. An empty token leaves the endpoint open.
func StaticBearer(realm, expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}

		provided, ok := BearerToken(c)
		if !ok || !util.ConstantTimeEqual(provided, expected) {
			c.Header("WWW-Authenticate", `Bearer realm="`+realm+`"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "Valid bearer token required",
			})
			return
		}

		c.Next()
	}
}
