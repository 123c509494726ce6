package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prudhvinik1/doorsync/internal/api"
	"github.com/prudhvinik1/doorsync/internal/models"
	"github.com/prudhvinik1/doorsync/internal/repositories"
	"github.com/prudhvinik1/doorsync/internal/services"
)

// defaultPullLimit caps one pull page; devices loop until drained.
const defaultPullLimit = 500

type Handler struct {
	attendees repositories.AttendeeRepository
	checkins  repositories.CheckinRepository
	devices   repositories.DeviceRepository
	presence  repositories.PresenceRepository
	auth      *services.DeviceAuthService
	log       *logrus.Entry
}

func NewHandler(
	attendees repositories.AttendeeRepository,
	checkins repositories.CheckinRepository,
	devices repositories.DeviceRepository,
	presence repositories.PresenceRepository,
	auth *services.DeviceAuthService,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		attendees: attendees,
		checkins:  checkins,
		devices:   devices,
		presence:  presence,
		auth:      auth,
		log:       log.WithField("component", "server"),
	}
}

func (h *Handler) EnrollDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	resp, err := h.auth.Enroll(r.Context(), req.Name)
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"device_id": resp.DeviceID.String(),
		"secret":    resp.Secret,
	})
}

func (h *Handler) LoginDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		Secret   string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	resp, err := h.auth.Login(r.Context(), deviceID, req.Secret)
	if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrDeviceRevoked) {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token":      resp.Token,
		"expires_at": resp.ExpiresAt,
		"device_id":  resp.DeviceID.String(),
	})
}

func (h *Handler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	err = h.auth.Revoke(r.Context(), deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	attendees, err := h.attendees.ListByEvent(r.Context(), eventID)
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"attendees": attendees})
}

// UpsertAttendees bulk-loads the roster, typically from the ticketing
// system's export before doors open.
func (h *Handler) UpsertAttendees(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req struct {
		Attendees []models.Attendee `json:"attendees"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for i := range req.Attendees {
		req.Attendees[i].EventID = eventID
		if req.Attendees[i].ID == "" {
			respondError(w, http.StatusBadRequest, "attendee id is required")
			return
		}
		if err := h.attendees.Upsert(r.Context(), &req.Attendees[i]); err != nil {
			h.serverError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"loaded": len(req.Attendees)})
}

func (h *Handler) RecordCheckin(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	claims := claimsFrom(r.Context())

	var req struct {
		AttendeeID     string    `json:"attendee_id"`
		Method         string    `json:"method"`
		DeviceID       string    `json:"device_id"`
		Seq            int64     `json:"seq"`
		CheckedInAt    time.Time `json:"checked_in_at"`
		OverrideReason string    `json:"override_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AttendeeID == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.CheckinMethod(req.Method).Valid() {
		respondError(w, http.StatusBadRequest, "invalid method")
		return
	}

	checkin := &models.Checkin{
		EventID:        eventID,
		AttendeeID:     req.AttendeeID,
		Method:         models.CheckinMethod(req.Method),
		DeviceID:       claims.DeviceID, // the token, not the body, names the device
		Seq:            req.Seq,
		OverrideReason: req.OverrideReason,
		CheckedInAt:    req.CheckedInAt,
	}

	err := h.checkins.Record(r.Context(), checkin)

	var conflict *repositories.ConflictError
	switch {
	case errors.As(err, &conflict):
		respondJSON(w, http.StatusConflict, api.SubmitResult{
			Status:         api.SubmitConflict,
			Reason:         api.ReasonAlreadyCheckedIn,
			WinnerDeviceID: conflict.WinnerDeviceID.String(),
		})
	case errors.Is(err, repositories.ErrUnknownAttendee):
		respondJSON(w, http.StatusConflict, api.SubmitResult{
			Status: api.SubmitConflict,
			Reason: api.ReasonUnknownAttendee,
		})
	case err != nil:
		h.serverError(w, err)
	default:
		respondJSON(w, http.StatusOK, api.SubmitResult{Status: api.SubmitAccepted})
	}
}

func (h *Handler) ListCheckins(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since cursor")
			return
		}
		since = parsed
	}

	checkins, cursor, err := h.checkins.ListSince(r.Context(), eventID, since, defaultPullLimit)
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"checkins": checkins,
		"cursor":   cursor,
	})
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	claims := claimsFrom(r.Context())

	presence := &models.Presence{
		DeviceID: claims.DeviceID,
		EventID:  eventID,
		Status:   string(models.StatusOnline),
	}
	if err := h.presence.SetPresence(r.Context(), presence); err != nil {
		h.serverError(w, err)
		return
	}
	if err := h.devices.UpdateLastSeen(r.Context(), claims.DeviceID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		h.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListDevicePresence(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	presences, err := h.presence.ListByEvent(r.Context(), eventID)
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"devices": presences})
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	h.log.WithError(err).Error("request failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
