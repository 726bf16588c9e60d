package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextKeyAPIKey is the gin context key holding the authenticated *APIKey.
const ContextKeyAPIKey = "apiKey"

// RequireAuth rejects requests without a valid key. It passes everything
// through when the manager has no keys.
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.GetHeader("X-API-Key")
		}

		key, err := m.ValidateKey(raw)
		if err != nil {
			msg := "API key required. Include 'Authorization: Bearer sk_...' header."
			if !errors.Is(err, ErrNoAPIKey) {
				msg = "Invalid API key."
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": msg,
			})
			return
		}

		c.Set(ContextKeyAPIKey, key)
		c.Next()
	}
}

// GetAPIKey returns the key that authenticated the request, if any.
func GetAPIKey(c *gin.Context) (*APIKey, bool) {
	v, ok := c.Get(ContextKeyAPIKey)
	if !ok {
		return nil, false
	}
	key, ok := v.(*APIKey)
	return key, ok
}
