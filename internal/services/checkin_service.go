package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prudhvinik1/doorsync/internal/cache"
	"github.com/prudhvinik1/doorsync/internal/models"
	"github.com/prudhvinik1/doorsync/internal/store"
	"github.com/prudhvinik1/doorsync/internal/syncer"
)

// Status is the typed outcome of a check-in operation. Operations report
// failures as statuses, never as panics; the door line keeps moving.
type Status string

const (
	StatusAdmitted  Status = "admitted"
	StatusDuplicate Status = "duplicate"
	StatusNotFound  Status = "not_found"
	StatusInvalid   Status = "invalid"
)

// Result is what every check-in operation returns to the UI layer.
type Result struct {
	Status   Status           `json:"status"`
	Attendee *models.Attendee `json:"attendee,omitempty"`
	Record   *models.Checkin  `json:"record,omitempty"`
	Detail   string           `json:"detail,omitempty"`
}

// CheckinService is the operation surface exposed to the scanning UI. All
// operations are synchronous against local storage; the network is the
// sync engine's problem.
type CheckinService struct {
	cache    *cache.AttendeeCache
	checkins *store.CheckinStore
	engine   *syncer.Engine
	deviceID uuid.UUID
	log      *logrus.Entry
}

func NewCheckinService(attendees *cache.AttendeeCache, checkins *store.CheckinStore, engine *syncer.Engine, deviceID uuid.UUID, log *logrus.Logger) *CheckinService {
	return &CheckinService{
		cache:    attendees,
		checkins: checkins,
		engine:   engine,
		deviceID: deviceID,
		log: log.WithFields(logrus.Fields{
			"component": "checkin",
			"device_id": deviceID,
		}),
	}
}

// Scan resolves a QR payload to an attendee and records a check-in.
// Scanning an already-admitted attendee returns StatusDuplicate without
// creating a record, so a double scan at the door is harmless.
func (s *CheckinService) Scan(ctx context.Context, qrPayload string) (*Result, error) {
	attendeeID, err := decodeQRPayload(qrPayload)
	if err != nil {
		return &Result{Status: StatusInvalid, Detail: err.Error()}, nil
	}
	return s.admit(ctx, attendeeID, models.MethodScan, "")
}

// ManualCheckin admits an attendee found via search, same duplicate rules
// as Scan.
func (s *CheckinService) ManualCheckin(ctx context.Context, attendeeID string) (*Result, error) {
	return s.admit(ctx, attendeeID, models.MethodManual, "")
}

// EmergencyOverride re-admits an attendee past the duplicate check, for
// cases like a lost wristband. The justification is mandatory and is
// persisted with the record for audit.
func (s *CheckinService) EmergencyOverride(ctx context.Context, attendeeID, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &Result{Status: StatusInvalid, Detail: "override reason is required"}, nil
	}

	result, err := s.admit(ctx, attendeeID, models.MethodOverride, reason)
	if err == nil && result.Status == StatusAdmitted {
		s.log.WithFields(logrus.Fields{
			"attendee_id": attendeeID,
			"reason":      reason,
			"seq":         result.Record.Seq,
		}).Warn("emergency override issued")
	}
	return result, err
}

func (s *CheckinService) admit(ctx context.Context, attendeeID string, method models.CheckinMethod, overrideReason string) (*Result, error) {
	attendee, err := s.cache.Lookup(attendeeID)
	if errors.Is(err, cache.ErrNotFound) {
		return &Result{Status: StatusNotFound, Detail: "attendee not in roster"}, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &models.Checkin{
		ID:             uuid.New(),
		AttendeeID:     attendeeID,
		Method:         method,
		DeviceID:       s.deviceID,
		OverrideReason: overrideReason,
		CheckedInAt:    time.Now().UTC(),
	}

	err = s.checkins.Append(ctx, rec)
	if errors.Is(err, store.ErrDuplicate) {
		return &Result{Status: StatusDuplicate, Attendee: attendee, Detail: "already checked in"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"attendee_id": attendeeID,
		"method":      method,
		"seq":         rec.Seq,
	}).Info("attendee checked in")

	return &Result{Status: StatusAdmitted, Attendee: attendee, Record: rec}, nil
}

// Search delegates to the attendee cache.
func (s *CheckinService) Search(query string) []models.Attendee {
	return s.cache.Search(query)
}

// ForceSync runs one sync cycle immediately, e.g. from the UI's "sync now"
// button.
func (s *CheckinService) ForceSync(ctx context.Context) (*syncer.Summary, error) {
	return s.engine.Sync(ctx)
}

// ClearEventData destroys all local state for the event: roster, check-in
// log, remote knowledge and cursor. Administrative action when the device
// is repurposed for another event.
func (s *CheckinService) ClearEventData(ctx context.Context) error {
	eventID := s.checkins.EventID()
	if err := s.checkins.Clear(ctx); err != nil {
		return err
	}
	if err := s.cache.Clear(ctx, eventID); err != nil {
		return err
	}
	s.log.WithField("event_id", eventID).Warn("event data cleared")
	return nil
}
