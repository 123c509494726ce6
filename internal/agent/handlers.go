// Package agent is the thin HTTP surface the scanning UI talks to on the
// device itself. Every route maps onto one check-in operation; outcomes
// come back as typed statuses, never as opaque failures, so the UI can keep
// the door line moving.
package agent

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prudhvinik1/doorsync/internal/services"
)

type Handler struct {
	service *services.CheckinService
}

func NewHandler(service *services.CheckinService) *Handler {
	return &Handler{service: service}
}

func NewRouter(h *Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Post("/scan", h.Scan)
	router.Post("/checkins/manual", h.ManualCheckin)
	router.Post("/checkins/override", h.EmergencyOverride)
	router.Get("/attendees/search", h.Search)
	router.Get("/stats", h.Stats)
	router.Post("/sync", h.ForceSync)
	router.Delete("/event-data", h.ClearEventData)

	return router
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Scan(r.Context(), req.Payload)
	h.respondResult(w, result, err)
}

func (h *Handler) ManualCheckin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AttendeeID string `json:"attendee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.ManualCheckin(r.Context(), req.AttendeeID)
	h.respondResult(w, result, err)
}

func (h *Handler) EmergencyOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AttendeeID string `json:"attendee_id"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.EmergencyOverride(r.Context(), req.AttendeeID, req.Reason)
	h.respondResult(w, result, err)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	results := h.service.Search(r.URL.Query().Get("q"))
	respondJSON(w, http.StatusOK, map[string]any{"attendees": results})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Stats())
}

func (h *Handler) ForceSync(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ForceSync(r.Context())
	if err != nil {
		// The cycle failed partway; whatever it managed is still reported
		// and the rest stays pending for the next cycle.
		respondJSON(w, http.StatusAccepted, map[string]any{
			"summary": summary,
			"error":   err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (h *Handler) ClearEventData(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearEventData(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondResult maps operation statuses to HTTP codes: duplicate admissions
// are 409, unknown attendees 404, bad input 422.
func (h *Handler) respondResult(w http.ResponseWriter, result *services.Result, err error) {
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	switch result.Status {
	case services.StatusDuplicate:
		status = http.StatusConflict
	case services.StatusNotFound:
		status = http.StatusNotFound
	case services.StatusInvalid:
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
