package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"identity-session-plane/internal/security"
)

const bearerPrefix = "bearer "

// RequireServiceToken returns middleware that validates the Bearer token on
// machine-to-machine routes against the provider key and the internal audience.
// The caller's subject and roles are set in the request context for downstream
// handlers and the audit middleware.
func RequireServiceToken(verifier *security.Verifier, audience string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		claims, err := verifier.Verify(token, audience)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		ctx := WithIdentity(c.Request.Context(), claims.Subject, "")
		ctx = WithRoles(ctx, claims.Roles)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractBearer returns the Bearer token from an Authorization header value,
// or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
