package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"identity-session-plane/internal/auth/service"
	"identity-session-plane/internal/events"
	"identity-session-plane/internal/idp"
	"identity-session-plane/internal/security"
	"identity-session-plane/internal/server/middleware"
)

// Handler serves the login and logout endpoints.
type Handler struct {
	svc      *service.AuthService
	producer events.Producer
	// cookieSecure controls the Secure flag on the session cookie; off only in development.
	cookieSecure bool
}

// NewHandler returns the auth HTTP handler. producer may be nil to disable
// event emission.
func NewHandler(svc *service.AuthService, producer events.Producer, cookieSecure bool) *Handler {
	return &Handler{svc: svc, producer: producer, cookieSecure: cookieSecure}
}

type loginRequest struct {
	Code string `json:"code"`
}

type loginResponse struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login exchanges an authorization code for a session. The session id is
// returned in the body and set as an HttpOnly cookie.
func (h *Handler) Login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	res, err := h.svc.Login(c.Request.Context(), body.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		case errors.Is(err, security.ErrAuth):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token verification failed"})
		case errors.Is(err, idp.ErrUpstream):
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
		default:
			log.Printf("auth: login failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	c.Set("userID", res.UserID)
	events.EmitAsync(h.producer, c.Request.Context(), events.New(events.TypeLogin, res.UserID, res.SessionID))

	maxAge := int(time.Until(res.ExpiresAt).Seconds())
	c.SetCookie(middleware.SessionCookie, res.SessionID, maxAge, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, loginResponse{
		SessionID: res.SessionID,
		UserID:    res.UserID,
		ExpiresAt: res.ExpiresAt,
	})
}

// Logout tears down the caller's session. Unknown sessions are treated as
// already logged out.
func (h *Handler) Logout(c *gin.Context) {
	id := middleware.SessionID(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session"})
		return
	}

	if err := h.svc.Logout(c.Request.Context(), id); err != nil {
		log.Printf("auth: logout failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	if userID, ok := middleware.GetUserID(c.Request.Context()); ok {
		c.Set("userID", userID)
		events.EmitAsync(h.producer, c.Request.Context(), events.New(events.TypeLogout, userID, id))
	} else {
		events.EmitAsync(h.producer, c.Request.Context(), events.New(events.TypeLogout, "", id))
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cookieSecure, true)
	c.Status(http.StatusNoContent)
}

// Me reports the caller's identity as resolved by the session gate.
func (h *Handler) Me(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	sessionID, _ := middleware.GetSessionID(c.Request.Context())
	roles, _ := middleware.GetRoles(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"userId":    userID,
		"sessionId": sessionID,
		"roles":     roles,
	})
}
