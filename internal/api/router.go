// Package api serves the engine's commands and event stream over HTTP, plus
// the history backend routes used by remote engines.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vthunder/acuity/internal/engine"
	"github.com/vthunder/acuity/internal/persist"
)

// Store is a history backend that can also answer queries
type Store interface {
	persist.Backend
	persist.Reader
}

// NewRouter builds the HTTP surface. eng or store may be nil, which leaves
// their routes out. token protects /api when set.
func NewRouter(eng *engine.Engine, store Store, token string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", health)

	if eng != nil {
		h := &engineHandler{engine: eng}
		r.Route("/engine", func(r chi.Router) {
			r.Get("/status", h.Status)
			r.Get("/history", h.History)
			r.Get("/report", h.Report)
			r.Get("/tasks", h.Tasks)
			r.Get("/events", h.Events)
			r.Post("/task", h.SetTask)
			r.Post("/confirm", h.Confirm)
			r.Post("/start", h.Start)
			r.Post("/stop", h.Stop)
			r.Post("/complete", h.Complete)
		})
	}

	if store != nil {
		h := &backendHandler{store: store}
		r.Route("/api", func(r chi.Router) {
			r.Use(BearerAuth(token))
			r.Post("/observations", h.AppendObservation)
			r.Get("/history", h.History)
			r.Post("/tasks", h.AppendTask)
			r.Get("/tasks", h.Tasks)
		})
	}

	return r
}
