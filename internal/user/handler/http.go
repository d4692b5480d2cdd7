package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"identity-session-plane/internal/events"
	"identity-session-plane/internal/idp"
	"identity-session-plane/internal/plan"
	"identity-session-plane/internal/user/repository"
)

// PlanSyncer pushes a user's plan to the identity provider role mapping.
type PlanSyncer interface {
	Sync(ctx context.Context, userID, planID string) error
}

// Handler serves the internal user settings and plan endpoints.
type Handler struct {
	users    repository.Repository
	plans    PlanSyncer
	producer events.Producer
}

// NewHandler returns the user HTTP handler. producer may be nil to disable
// event emission.
func NewHandler(users repository.Repository, plans PlanSyncer, producer events.Producer) *Handler {
	return &Handler{users: users, plans: plans, producer: producer}
}

// GetSettings returns the stored settings for a user.
func (h *Handler) GetSettings(c *gin.Context) {
	u, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Printf("user: get settings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	settings := u.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSettings replaces the stored settings for a user.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var body struct {
		Settings map[string]any `json:"settings"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.users.UpdateSettings(c.Request.Context(), c.Param("id"), body.Settings); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Printf("user: update settings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdatePlan stores a user's new plan and pushes the matching provider role.
// The plan is persisted before the role push; a failed push is reported so the
// caller can retry, with the plan already in place. An updatedAt older than the
// stored record marks the change as already superseded and is ignored.
func (h *Handler) UpdatePlan(c *gin.Context) {
	var body struct {
		PlanID    string     `json:"planId"`
		UpdatedAt *time.Time `json:"updatedAt"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PlanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "planId required"})
		return
	}
	id := c.Param("id")

	u, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Printf("user: lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if body.UpdatedAt != nil && body.UpdatedAt.Before(u.UpdatedAt) {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.users.UpdatePlan(c.Request.Context(), id, body.PlanID); err != nil {
		log.Printf("user: update plan failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	// the role push is keyed by the provider's user id
	if err := h.plans.Sync(c.Request.Context(), u.ExternalID, body.PlanID); err != nil {
		switch {
		case errors.Is(err, plan.ErrUnmappedPlan):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no role mapped for plan"})
		case errors.Is(err, idp.ErrPartialReplace):
			log.Printf("user: role replace left partial state for %s: %v", id, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "role sync incomplete, retry"})
		default:
			log.Printf("user: role sync failed for %s: %v", id, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "role sync failed, plan stored"})
		}
		return
	}

	event := events.New(events.TypePlanSynced, id, "")
	event.Metadata = map[string]string{"plan": body.PlanID}
	events.EmitAsync(h.producer, c.Request.Context(), event)
	c.Status(http.StatusNoContent)
}
