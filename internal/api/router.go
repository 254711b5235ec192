package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/USEPA-clone/nsink/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Point queries.
	r.Get("/flowpath", h.FlowPath)
	r.Get("/segments/{comid}", h.Segment)
	r.Get("/lakes/{comid}", h.Lake)
	r.Get("/summary", h.Summary)

	// Static maps.
	r.Post("/static-maps", h.GenerateStaticMaps)
	r.Get("/static-maps/runs", h.ListRuns)
	r.Get("/static-maps/runs/{id}/samples", h.RunSamples)
	r.Get("/static-maps/runs/{id}/rasters/{name}", h.RunRaster)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
