package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is one handheld scanner registered with the server. SecretHash is
// a bcrypt hash of the enrollment secret handed to the device operator.
type Device struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}
