package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"identity-session-plane/internal/gate"
	"identity-session-plane/internal/security"
)

// PermissionEvaluator resolves a role set into permissions.
type PermissionEvaluator interface {
	Permissions(ctx context.Context, roles []string) ([]string, error)
}

// Handler serves session introspection for other services. Callers present a
// machine-to-machine token; the session id being inspected travels in the path.
type Handler struct {
	gate     *gate.Gate
	verifier *security.Verifier
	policy   PermissionEvaluator
	audience string
}

// NewHandler returns the session HTTP handler. policy may be nil to skip
// permission enrichment.
func NewHandler(g *gate.Gate, verifier *security.Verifier, policy PermissionEvaluator, audience string) *Handler {
	return &Handler{gate: g, verifier: verifier, policy: policy, audience: audience}
}

type introspectResponse struct {
	Status      string    `json:"status"`
	UserID      string    `json:"userId,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	Refreshed   bool      `json:"refreshed,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// Introspect validates the session in the path and reports its status. Valid
// sessions include the owner, expiry, and the permissions derived from the
// access token's roles.
func (h *Handler) Introspect(c *gin.Context) {
	id := c.Param("id")

	res, err := h.gate.Validate(c.Request.Context(), id)
	if err != nil {
		log.Printf("session: introspection failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session check failed"})
		return
	}

	switch res.Status {
	case gate.StatusNotFound:
		c.JSON(http.StatusNotFound, introspectResponse{Status: res.Status.String()})
		return
	case gate.StatusExpired:
		c.JSON(http.StatusOK, introspectResponse{Status: res.Status.String()})
		return
	}

	out := introspectResponse{
		Status:    res.Status.String(),
		UserID:    res.Session.UserID,
		ExpiresAt: res.Session.ExpiresAt().UTC(),
		Refreshed: res.Refreshed,
	}
	if claims, err := h.verifier.Verify(res.Session.AccessToken, h.audience); err == nil {
		out.Roles = claims.Roles
		if h.policy != nil {
			perms, err := h.policy.Permissions(c.Request.Context(), claims.Roles)
			if err != nil {
				log.Printf("session: permission lookup failed: %v", err)
			} else {
				out.Permissions = perms
			}
		}
	}
	c.JSON(http.StatusOK, out)
}
