// Package api is the device's view of the check-in server. The transport is
// a plain request/response HTTP API; everything the engine needs to know
// about it is behind the Client interface so tests can substitute a fake.
package api

import (
	"context"
	"errors"

	"github.com/prudhvinik1/doorsync/internal/models"
)

// ErrUnavailable marks transient failures: the network is down or the
// server answered 5xx. Callers retry these; they never reject a record.
var ErrUnavailable = errors.New("server unavailable")

type SubmitStatus string

const (
	SubmitAccepted SubmitStatus = "accepted"
	SubmitConflict SubmitStatus = "conflict"
)

// Conflict reasons returned by the server.
const (
	ReasonAlreadyCheckedIn = "already_checked_in"
	ReasonUnknownAttendee  = "unknown_attendee"
)

// SubmitResult is the server's verdict on one check-in submission.
type SubmitResult struct {
	Status SubmitStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
	// WinnerDeviceID identifies the device whose earlier check-in won,
	// populated on already_checked_in conflicts.
	WinnerDeviceID string `json:"winner_device_id,omitempty"`
}

type Client interface {
	// FetchRoster returns the full attendee roster for an event.
	FetchRoster(ctx context.Context, eventID string) ([]models.Attendee, error)
	// SubmitCheckin pushes one locally recorded check-in. Submission is
	// idempotent: the device id + seq identify the record, so a retry of
	// an already-stored record is accepted again without a duplicate.
	SubmitCheckin(ctx context.Context, checkin *models.Checkin) (*SubmitResult, error)
	// FetchCheckins returns check-ins recorded by any device after the
	// given cursor, plus the new cursor position.
	FetchCheckins(ctx context.Context, eventID string, since int64) ([]models.RemoteCheckin, int64, error)
	// Heartbeat refreshes this device's presence on the server.
	Heartbeat(ctx context.Context, eventID string) error
}
