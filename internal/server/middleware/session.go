package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"identity-session-plane/internal/events"
	"identity-session-plane/internal/gate"
	"identity-session-plane/internal/security"
)

const (
	// SessionHeader carries the opaque session id on API calls.
	SessionHeader = "X-Session-Id"
	// SessionCookie is the browser-facing session cookie name.
	SessionCookie = "sid"
)

// SessionID returns the session id from the request header or cookie, or "".
// The header wins when both are present.
func SessionID(c *gin.Context) string {
	if id := c.GetHeader(SessionHeader); id != "" {
		return id
	}
	if id, err := c.Cookie(SessionCookie); err == nil {
		return id
	}
	return ""
}

// RequireSession returns middleware that validates the caller's session through
// the gate. Expired and unknown sessions are rejected with 401; a valid session
// sets user_id, session_id, and the token's roles in the request context.
// Rotation and expiry outcomes are emitted on the security event stream,
// best-effort.
func RequireSession(g *gate.Gate, verifier *security.Verifier, audience string, producer events.Producer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := SessionID(c)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			return
		}

		res, err := g.Validate(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session check failed"})
			return
		}
		switch res.Status {
		case gate.StatusNotFound:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown session"})
			return
		case gate.StatusExpired:
			events.EmitAsync(producer, c.Request.Context(), events.New(events.TypeSessionExpired, res.Session.UserID, id))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		if res.Refreshed {
			events.EmitAsync(producer, c.Request.Context(), events.New(events.TypeTokenRotated, res.Session.UserID, id))
		}

		ctx := WithIdentity(c.Request.Context(), res.Session.UserID, id)
		ctx = WithAccessToken(ctx, res.Session.AccessToken)
		if claims, err := verifier.Verify(res.Session.AccessToken, audience); err == nil {
			ctx = WithRoles(ctx, claims.Roles)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
