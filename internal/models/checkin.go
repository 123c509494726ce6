package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckinMethod records how an attendee was admitted.
type CheckinMethod string

const (
	MethodScan     CheckinMethod = "scan"
	MethodManual   CheckinMethod = "manual"
	MethodOverride CheckinMethod = "override"
)

// Valid reports whether m is one of the known admission methods.
func (m CheckinMethod) Valid() bool {
	switch m {
	case MethodScan, MethodManual, MethodOverride:
		return true
	}
	return false
}

// SyncState tracks a check-in record's progress through the sync engine.
type SyncState string

const (
	// SyncPending means the record has not been acknowledged by the server yet.
	SyncPending SyncState = "pending"
	// SyncSynced means the server accepted the record.
	SyncSynced SyncState = "synced"
	// SyncRejected means the server refused the record; RejectReason explains why.
	SyncRejected SyncState = "rejected"
)

// Checkin is one admission attempt recorded on this device. Records are
// append-only: the sync engine transitions SyncState but never rewrites the
// rest, preserving the audit trail.
type Checkin struct {
	ID             uuid.UUID     `json:"id"`
	EventID        string        `json:"event_id"`
	AttendeeID     string        `json:"attendee_id"`
	Method         CheckinMethod `json:"method"`
	DeviceID       uuid.UUID     `json:"device_id"`
	Seq            int64         `json:"seq"`
	SyncState      SyncState     `json:"sync_state"`
	RejectReason   string        `json:"reject_reason,omitempty"`
	OverrideReason string        `json:"override_reason,omitempty"`
	CheckedInAt    time.Time     `json:"checked_in_at"`
}

// Active reports whether this record counts as a live admission on the
// device. Exactly one active record may exist per attendee, except for
// overrides.
func (c *Checkin) Active() bool {
	return c.SyncState == SyncPending || c.SyncState == SyncSynced
}

// RemoteCheckin is an admission recorded by another device, learned through
// a sync pull. Kept for statistics and duplicate prevention only; never
// re-submitted.
type RemoteCheckin struct {
	EventID     string        `json:"event_id"`
	AttendeeID  string        `json:"attendee_id"`
	Method      CheckinMethod `json:"method"`
	DeviceID    uuid.UUID     `json:"device_id"`
	Seq         int64         `json:"seq"`
	Cursor      int64         `json:"cursor"`
	CheckedInAt time.Time     `json:"checked_in_at"`
}
