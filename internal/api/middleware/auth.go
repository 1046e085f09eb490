// Package middleware provides Gin middleware specific to the gateway's
// client-facing API surface (bearer-token authentication).
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apierrors "github.com/kiro-gateway/gateway/internal/errors"
)

// Auth returns a Gin middleware that requires a valid proxy API key on
// every request it wraps, accepted either as `Authorization: Bearer <key>`
// or `x-api-key: <key>`. Health and root routes are mounted outside this
// middleware's route group and never see it.
func Auth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := extractKey(c.Request)
		if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(apiKey)) != 1 {
			appErr := apierrors.Auth("invalid or missing API key", nil)
			c.Header("Content-Type", "application/json")
			c.Data(appErr.HTTPStatusCode, "application/json", appErr.ToJSON())
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractKey(req *http.Request) string {
	if v := req.Header.Get("x-api-key"); v != "" {
		return v
	}
	auth := req.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
