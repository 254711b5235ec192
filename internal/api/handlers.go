package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/service"
	"github.com/USEPA-clone/nsink/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func int64Param(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return v, err == nil
}

// FlowPath handles GET /api/flowpath.
//
//	@Summary		Trace a flow path from a point and summarize removal
//	@Tags			flowpath
//	@Produce		json
//	@Param			x	query		number	true	"Easting in the dataset CRS"
//	@Param			y	query		number	true	"Northing in the dataset CRS"
//	@Success		200	{object}	FlowPathResponse
//	@Failure		400	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/flowpath [get]
func (h *Handler) FlowPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("x and y must be numbers"))
		return
	}
	res, err := h.svc.Trace(r.Context(), x, y)
	if err != nil {
		writeError(w, "trace", err)
		return
	}
	writeJSON(w, http.StatusOK, FlowPathResponse{
		X:                 res.X,
		Y:                 res.Y,
		CumulativeRemoval: res.CumulativeRemoval,
		Rows:              res.Rows,
		Path: &geojson.Feature{
			Geometry: res.Line,
			Properties: map[string]any{
				"cumulative_removal": res.CumulativeRemoval,
				"segments":           res.Path.Len(),
			},
		},
	})
}

// Segment handles GET /api/segments/{comid}.
//
//	@Summary		Get a stream segment with its removal
//	@Tags			network
//	@Produce		json
//	@Param			comid	path		int	true	"Segment COMID"
//	@Success		200		{object}	SegmentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/segments/{comid} [get]
func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	comid, ok := int64Param(r, "comid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("comid must be an integer"))
		return
	}
	d, err := h.svc.Segment(r.Context(), comid)
	if err != nil {
		writeError(w, "get segment", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Lake handles GET /api/lakes/{comid}.
//
//	@Summary		Get a waterbody with its morphology and removal
//	@Tags			network
//	@Produce		json
//	@Param			comid	path		int	true	"Lake COMID"
//	@Success		200		{object}	LakeDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lakes/{comid} [get]
func (h *Handler) Lake(w http.ResponseWriter, r *http.Request) {
	comid, ok := int64Param(r, "comid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("comid must be an integer"))
		return
	}
	d, err := h.svc.Lake(r.Context(), comid)
	if err != nil {
		writeError(w, "get lake", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Summary handles GET /api/summary.
//
//	@Summary		Summarize the loaded watershed
//	@Tags			network
//	@Produce		json
//	@Success		200	{object}	Summary
//	@Security		BearerAuth
//	@Router			/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Summary(r.Context())
	if err != nil {
		writeError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GenerateStaticMaps handles POST /api/static-maps.
//
//	@Summary		Generate and store the static maps
//	@Tags			static-maps
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StaticMapRequest	false	"Density and seed overrides; omitted fields use the configured values"
//	@Success		201		{object}	store.Run
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/static-maps [post]
func (h *Handler) GenerateStaticMaps(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req StaticMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Density != nil && *req.Density < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("density must not be negative"))
		return
	}
	run, err := h.svc.GenerateStaticMaps(r.Context(), req)
	if err != nil {
		writeError(w, "generate static maps", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// ListRuns handles GET /api/static-maps/runs.
//
//	@Summary		List stored static map runs, newest first
//	@Tags			static-maps
//	@Produce		json
//	@Success		200	{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/static-maps/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(r.Context())
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// RunSamples handles GET /api/static-maps/runs/{id}/samples.
//
//	@Summary		Get the traced sample points of a run as GeoJSON
//	@Tags			static-maps
//	@Produce		json
//	@Param			id	path		int	true	"Run id"
//	@Success		200	{object}	object
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/static-maps/runs/{id}/samples [get]
func (h *Handler) RunSamples(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be an integer"))
		return
	}
	samples, err := h.svc.RunSamples(r.Context(), id)
	if err != nil {
		writeError(w, "run samples", err)
		return
	}
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(samples))}
	for _, s := range samples {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}),
			Properties: map[string]any{
				"row":     s.Row,
				"col":     s.Col,
				"removal": s.Removal,
			},
		})
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		slog.Error("geojson encode failed", slog.String("error", err.Error()))
	}
}

// RunRaster handles GET /api/static-maps/runs/{id}/rasters/{name}.
//
//	@Summary		Download one static map as an ESRI ASCII grid
//	@Tags			static-maps
//	@Produce		plain
//	@Param			id		path		int		true	"Run id"
//	@Param			name	path		string	true	"Map name"	Enums(removal_effic, loading_idx, transport_idx, delivery_idx)
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/static-maps/runs/{id}/rasters/{name} [get]
func (h *Handler) RunRaster(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be an integer"))
		return
	}
	name := chi.URLParam(r, "name")
	if !slices.Contains(service.MapNames, name) {
		writeJSON(w, http.StatusNotFound, errorBody("unknown map "+name))
		return
	}
	ras, err := h.svc.RunRaster(r.Context(), id, name)
	if err != nil {
		writeError(w, "run raster", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("run%d_%s.asc", id, name)))
	w.WriteHeader(http.StatusOK)
	if err := raster.WriteASCII(w, ras); err != nil {
		slog.Error("raster encode failed", slog.String("error", err.Error()))
	}
}
