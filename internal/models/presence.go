package models

import (
	"time"

	"github.com/google/uuid"
)

// Presence is the server's view of a device's connectivity, refreshed by
// the heartbeat each sync cycle sends.
type Presence struct {
	DeviceID uuid.UUID `json:"device_id"`
	EventID  string    `json:"event_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
