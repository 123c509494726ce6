package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a server-side record of an issued device token. Deleting the
// session revokes the token, which is how a lost scanner is locked out.
type Session struct {
	ID        string    `json:"id"`
	DeviceID  uuid.UUID `json:"device_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
