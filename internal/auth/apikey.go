package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const headerName = "X-API-Key"

// providedKey reads the key from X-API-Key, then from a Bearer token, then
// from the api_key query parameter, which browsers need for WebSocket upgrades.
func providedKey(c *gin.Context) string {
	if key := c.GetHeader(headerName); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("api_key")
}

// APIKeyMiddleware validates the API key on every request.
// If apiKey is empty, authentication is disabled.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := providedKey(c)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
				"kind":  "unauthorized",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
				"kind":  "forbidden",
			})
			return
		}

		c.Next()
	}
}
