package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/prudhvinik1/doorsync/internal/models"
)

type AttendeeRepository interface {
	Upsert(ctx context.Context, attendee *models.Attendee) error
	GetByID(ctx context.Context, eventID, attendeeID string) (*models.Attendee, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Attendee, error)
}

type CheckinRepository interface {
	// Record stores one device-submitted check-in. It is idempotent on
	// (event, device, seq) and enforces first-arrival-wins per attendee;
	// see ConflictError and ErrUnknownAttendee for the failure modes.
	Record(ctx context.Context, checkin *models.Checkin) error
	// ListSince returns check-ins stored after the given cursor, oldest
	// first. The cursor is the server-assigned row id.
	ListSince(ctx context.Context, eventID string, cursor int64, limit int) ([]models.RemoteCheckin, int64, error)
}

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForDevice(ctx context.Context, deviceID uuid.UUID) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetPresence(ctx context.Context, deviceID uuid.UUID) (*models.Presence, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Presence, error)
}
