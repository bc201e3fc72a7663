package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(h *Handler, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Patient directory.
	r.Get("/patients", h.ListPatients)
	r.Get("/patients/{patientID}", h.GetPatient)

	// Timeline sessions.
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Put("/patient", h.SwitchPatient)
		r.Post("/reload", h.Reload)
		r.Put("/query", h.SetQuery)
		r.Put("/selection", h.SelectDate)
		r.Post("/keywords/toggle", h.ToggleKeyword)
		r.Get("/suggestions", h.Suggestions)

		// SSE stream (protected by same auth middleware).
		if h.events != nil {
			r.Get("/events", h.Events)
		}
	})

	r.Get("/palette", h.Palette)

	return r
}
