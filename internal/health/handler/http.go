package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports backing store reachability (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker reports policy engine readiness (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves readiness for Kubernetes, load balancers, and CI.
type Handler struct {
	db     Pinger
	policy PolicyChecker
}

// NewHandler returns the health handler. Either dependency may be nil, in
// which case that check is skipped.
func NewHandler(db Pinger, policy PolicyChecker) *Handler {
	return &Handler{db: db, policy: policy}
}

// Check runs the readiness checks and reports per-check status. Any failed
// check yields 503.
func (h *Handler) Check(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unreachable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if h.policy != nil {
		if err := h.policy.HealthCheck(c.Request.Context()); err != nil {
			checks["policy"] = "unhealthy"
			healthy = false
		} else {
			checks["policy"] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}
