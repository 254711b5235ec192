// Package models defines the domain types for nsink.
package models

import "github.com/twpayne/go-geom"

// FType classifies an NHDPlus flowline.
type FType string

const (
	FTypeStream     FType = "stream"
	FTypeArtificial FType = "artificial_path"
	FTypeCanal      FType = "canal"
	FTypeUnknown    FType = ""
)

// StreamSegment is one NHDPlus flowline. Node ids are shared join keys
// between segments.
type StreamSegment struct {
	COMID       int64            `json:"comid"`
	Geometry    *geom.LineString `json:"-"`
	FromNode    int64            `json:"from_node"`
	ToNode      int64            `json:"to_node"`
	StreamOrder int              `json:"stream_order"`
	LakeCOMID   int64            `json:"lake_comid,omitempty"`
	FType       FType            `json:"ftype"`
	OffNetwork  bool             `json:"off_network"`
}

// InLake reports whether the segment passes through a waterbody.
func (s StreamSegment) InLake() bool { return s.LakeCOMID != 0 }

// FlowRecord is the EROM flow table row for a segment.
type FlowRecord struct {
	COMID int64   `json:"comid"`
	TOTMA float64 `json:"totma"` // days
	QCMS  float64 `json:"qcms"`  // m3/s
}

// Lake is a waterbody polygon.
type Lake struct {
	COMID      int64         `json:"comid"`
	Geometry   *geom.Polygon `json:"-"`
	OffNetwork bool          `json:"off_network"`
}

// LakeMorphology holds bathymetry attributes. Zero means unknown.
type LakeMorphology struct {
	COMID     int64   `json:"comid"`
	MeanDepth float64 `json:"mean_depth"` // m
	Volume    float64 `json:"volume"`     // m3
	MaxDepth  float64 `json:"max_depth"`  // m
	Area      float64 `json:"area"`       // m2
}

// SurfaceArea returns Area, or Volume/MeanDepth when area is unknown.
func (m LakeMorphology) SurfaceArea() (float64, bool) {
	if m.Area > 0 {
		return m.Area, true
	}
	if m.Volume > 0 && m.MeanDepth > 0 {
		return m.Volume / m.MeanDepth, true
	}
	return 0, false
}

// HydricSoilUnit is a SSURGO map unit polygon with its hydric percentage.
type HydricSoilUnit struct {
	MUKEY     int64              `json:"mukey"`
	Geometry  *geom.MultiPolygon `json:"-"`
	HydricPct float64            `json:"hydric_pct"`
}
