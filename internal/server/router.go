// Package server exposes the authoritative check-in API. It is the arbiter
// of "who admitted this attendee first": arrival order at the server
// decides conflicts, because device clocks at a venue cannot be trusted.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Post("/devices", h.EnrollDevice)
	router.Post("/devices/login", h.LoginDevice)

	router.Group(func(r chi.Router) {
		r.Use(h.Authenticator)

		r.Post("/devices/{deviceID}/revoke", h.RevokeDevice)

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/attendees", h.ListAttendees)
			r.Post("/attendees", h.UpsertAttendees)
			r.Post("/checkins", h.RecordCheckin)
			r.Get("/checkins", h.ListCheckins)
			r.Post("/heartbeat", h.Heartbeat)
			r.Get("/devices", h.ListDevicePresence)
		})
	})

	return router
}
