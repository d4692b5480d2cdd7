// Package events defines the security event stream: lifecycle moments
// worth alerting on (logins, rotations, teardowns) flow through Kafka to
// the audit worker.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the session lifecycle.
const (
	TypeLogin            = "login"
	TypeLogout           = "logout"
	TypeTokenRotated     = "token_rotated"
	TypeRotationDegraded = "rotation_degraded"
	TypeSessionExpired   = "session_expired"
	TypePlanSynced       = "plan_synced"
	TypeHTTPRequest      = "http_request"
)

// SecurityEvent is one entry on the security event stream. Serialized as
// JSON on the wire; field names are part of the worker's contract.
type SecurityEvent struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	EventType string            `json:"eventType"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// New returns a SecurityEvent stamped with a fresh id and the current time.
func New(eventType, userID, sessionID string) *SecurityEvent {
	return &SecurityEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		EventType: eventType,
		Source:    "session-plane",
		CreatedAt: time.Now().UTC(),
	}
}
