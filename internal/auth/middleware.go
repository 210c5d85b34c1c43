package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gilkh/livret/internal/logging"
)

// ClaimsKey is where the middleware stores verified claims on the gin context.
const ClaimsKey = "claims"

// BearerToken extracts the token from the Authorization header, falling
// back to the auth_token cookie set by the web app.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := c.Cookie("auth_token"); err == nil {
		return cookie
	}
	return ""
}

// Authenticate verifies the bearer token when present and stores its
// claims. Render tokens are never accepted as API credentials.
func (t *Tokens) Authenticate(c *gin.Context) bool {
	token := BearerToken(c)
	if token == "" {
		return false
	}
	claims, err := t.Verify(token)
	if err != nil {
		logging.DebugWithComponent(logging.ComponentAuth, "Rejected bearer token", "ip", c.ClientIP(), "error", err)
		return false
	}
	if claims.Purpose != "" {
		return false
	}
	c.Set(ClaimsKey, claims)
	return true
}

// RequireBearer rejects requests without a valid API token.
func (t *Tokens) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Authenticate(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authentication required"})
			return
		}
		c.Next()
	}
}

// OptionalBearer records claims when a valid token is sent and lets the
// request through either way; handlers decide what else they accept.
func (t *Tokens) OptionalBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		t.Authenticate(c)
		c.Next()
	}
}

// CurrentClaims returns the claims stored by the middleware, if any.
func CurrentClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
