package domain

import "time"

// User is a local account mirroring an identity at the provider.
// ExternalID is the provider's subject; PlanID drives the role kept in
// sync at the provider.
type User struct {
	ID         string
	ExternalID string
	Email      string
	PlanID     string
	Settings   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
