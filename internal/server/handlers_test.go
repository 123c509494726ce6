package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/doorsync/internal/api"
	"github.com/prudhvinik1/doorsync/internal/models"
	"github.com/prudhvinik1/doorsync/internal/repositories"
	"github.com/prudhvinik1/doorsync/internal/services"
)

// fakeCheckinRepo scripts Record outcomes per attendee id.
type fakeCheckinRepo struct {
	outcomes map[string]error
	recorded []*models.Checkin
	listed   []models.RemoteCheckin
	cursor   int64
}

func (f *fakeCheckinRepo) Record(_ context.Context, checkin *models.Checkin) error {
	if err, ok := f.outcomes[checkin.AttendeeID]; ok {
		return err
	}
	f.recorded = append(f.recorded, checkin)
	return nil
}

func (f *fakeCheckinRepo) ListSince(_ context.Context, _ string, _ int64, _ int) ([]models.RemoteCheckin, int64, error) {
	return f.listed, f.cursor, nil
}

type fakePresenceRepo struct {
	presences []*models.Presence
}

func (f *fakePresenceRepo) SetPresence(_ context.Context, p *models.Presence) error {
	f.presences = append(f.presences, p)
	return nil
}

func (f *fakePresenceRepo) GetPresence(_ context.Context, deviceID uuid.UUID) (*models.Presence, error) {
	return &models.Presence{DeviceID: deviceID, Status: string(models.StatusOffline)}, nil
}

func (f *fakePresenceRepo) ListByEvent(_ context.Context, _ string) ([]models.Presence, error) {
	return nil, nil
}

type fakeDeviceRepo struct{}

func (f *fakeDeviceRepo) Create(_ context.Context, device *models.Device) error {
	device.ID = uuid.New()
	device.CreatedAt = time.Now()
	return nil
}

func (f *fakeDeviceRepo) GetByID(_ context.Context, _ uuid.UUID) (*models.Device, error) {
	return nil, repositories.ErrNotFound
}

func (f *fakeDeviceRepo) UpdateLastSeen(_ context.Context, _ uuid.UUID) error { return nil }
func (f *fakeDeviceRepo) Revoke(_ context.Context, _ uuid.UUID) error         { return nil }

func newTestHandler(checkins repositories.CheckinRepository) *Handler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewHandler(nil, checkins, &fakeDeviceRepo{}, &fakePresenceRepo{}, nil, logger)
}

// authedRequest builds a request carrying route params and device claims,
// as the router and Authenticator middleware would.
func authedRequest(method, target, body string, deviceID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("eventID", "evt-1")
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, claimsKey, &services.TokenClaims{
		DeviceID:  deviceID,
		SessionID: "sess-1",
	})
	return req.WithContext(ctx)
}

func TestRecordCheckin_Accepted(t *testing.T) {
	repo := &fakeCheckinRepo{}
	h := newTestHandler(repo)
	deviceID := uuid.New()

	body := `{"attendee_id": "att-1", "method": "scan", "seq": 3, "checked_in_at": "2026-08-29T18:00:00Z"}`
	rec := httptest.NewRecorder()
	h.RecordCheckin(rec, authedRequest(http.MethodPost, "/events/evt-1/checkins", body, deviceID))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted"`)

	require.Len(t, repo.recorded, 1)
	stored := repo.recorded[0]
	assert.Equal(t, "evt-1", stored.EventID)
	assert.Equal(t, int64(3), stored.Seq)
	// The device identity comes from the token, never from the body.
	assert.Equal(t, deviceID, stored.DeviceID)
}

func TestRecordCheckin_AlreadyCheckedIn(t *testing.T) {
	winner := uuid.New()
	repo := &fakeCheckinRepo{outcomes: map[string]error{
		"att-1": &repositories.ConflictError{WinnerDeviceID: winner, WinnerAt: time.Now()},
	}}
	h := newTestHandler(repo)

	body := `{"attendee_id": "att-1", "method": "scan", "seq": 1, "checked_in_at": "2026-08-29T18:00:00Z"}`
	rec := httptest.NewRecorder()
	h.RecordCheckin(rec, authedRequest(http.MethodPost, "/events/evt-1/checkins", body, uuid.New()))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), api.ReasonAlreadyCheckedIn)
	assert.Contains(t, rec.Body.String(), winner.String())
}

func TestRecordCheckin_InvalidMethod(t *testing.T) {
	repo := &fakeCheckinRepo{}
	h := newTestHandler(repo)

	body := `{"attendee_id": "att-1", "method": "telepathy", "seq": 1, "checked_in_at": "2026-08-29T18:00:00Z"}`
	rec := httptest.NewRecorder()
	h.RecordCheckin(rec, authedRequest(http.MethodPost, "/events/evt-1/checkins", body, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.recorded)
}

func TestRecordCheckin_UnknownAttendee(t *testing.T) {
	repo := &fakeCheckinRepo{outcomes: map[string]error{
		"ghost": repositories.ErrUnknownAttendee,
	}}
	h := newTestHandler(repo)

	body := `{"attendee_id": "ghost", "method": "scan", "seq": 1, "checked_in_at": "2026-08-29T18:00:00Z"}`
	rec := httptest.NewRecorder()
	h.RecordCheckin(rec, authedRequest(http.MethodPost, "/events/evt-1/checkins", body, uuid.New()))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), api.ReasonUnknownAttendee)
}

func TestListCheckins_BadCursor(t *testing.T) {
	h := newTestHandler(&fakeCheckinRepo{})

	rec := httptest.NewRecorder()
	h.ListCheckins(rec, authedRequest(http.MethodGet, "/events/evt-1/checkins?since=oops", "", uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHeartbeat_RefreshesPresence(t *testing.T) {
	presence := &fakePresenceRepo{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := NewHandler(nil, &fakeCheckinRepo{}, &fakeDeviceRepo{}, presence, nil, logger)
	deviceID := uuid.New()

	rec := httptest.NewRecorder()
	h.Heartbeat(rec, authedRequest(http.MethodPost, "/events/evt-1/heartbeat", "", deviceID))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, presence.presences, 1)
	assert.Equal(t, deviceID, presence.presences[0].DeviceID)
	assert.Equal(t, "evt-1", presence.presences[0].EventID)
	assert.Equal(t, string(models.StatusOnline), presence.presences[0].Status)
}
