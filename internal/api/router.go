package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/lifeline/internal/sse"
	"github.com/starford/lifeline/internal/viewer"
)

// NewRouter creates a chi router with all session routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, serves GET /sessions/{id}/events inside the auth group.
func NewRouter(svc *viewer.Service, authEnabled bool, token string, broker *sse.Broker) chi.Router {
	h := NewHandler(svc, broker)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/sessions", h.OpenSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)

		r.Get("/frame.svg", h.Frame)
		r.Get("/export.ics", h.ExportICS)

		// Navigation.
		r.Post("/window", h.SetWindow)
		r.Post("/pan", h.Pan)
		r.Post("/zoom", h.Zoom)
		r.Post("/resize", h.Resize)

		r.Post("/select", h.Select)
		r.Post("/refresh", h.Refresh)
		r.Post("/thumbnails", h.ToggleThumbnails)

		r.Get("/items/*", h.GetItem)
		r.Get("/search", h.Search)
		r.Get("/tags", h.Tags)

		if broker != nil {
			r.Get("/events", h.Events)
		}
	})

	return r
}
