package api

import (
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/service"
	"github.com/USEPA-clone/nsink/internal/store"
)

// FlowPathResponse is a traced flow path with removal rows and its geometry.
type FlowPathResponse struct {
	X                 float64                  `json:"x" example:"1830412.5" validate:"required"`
	Y                 float64                  `json:"y" example:"2411020.0" validate:"required"`
	CumulativeRemoval float64                  `json:"cumulative_removal" example:"62.4" validate:"required"`
	Rows              []models.FlowPathRemoval `json:"rows" validate:"required"`
	Path              *geojson.Feature         `json:"path" validate:"required"`
}

// StaticMapRequest is the request body for generating static maps.
type StaticMapRequest = service.StaticMapRequest

// RunListResponse wraps stored static map runs.
type RunListResponse struct {
	Runs []store.Run `json:"runs" validate:"required"`
}

// SegmentDetail is the segment response type (aliased from the domain layer).
type SegmentDetail = service.SegmentDetail

// LakeDetail is the lake response type (aliased from the domain layer).
type LakeDetail = service.LakeDetail

// Summary is the watershed summary response type (aliased from the domain layer).
type Summary = service.Summary
