package models

// RemovalType classifies which sink removed nitrogen at a unit.
type RemovalType string

const (
	RemovalStream         RemovalType = "stream"
	RemovalLake           RemovalType = "lake"
	RemovalLandHydric     RemovalType = "land-hydric"
	RemovalLandImpervious RemovalType = "land-impervious"
	RemovalLandNone       RemovalType = "land-none"
)

var removalCodes = []RemovalType{
	RemovalLandNone, RemovalLandHydric, RemovalLandImpervious, RemovalStream, RemovalLake,
}

// Code returns the value stored in removal-type rasters.
func (t RemovalType) Code() float64 {
	for i, r := range removalCodes {
		if r == t {
			return float64(i)
		}
	}
	return -1
}

// RemovalTypeFromCode is the inverse of Code.
func RemovalTypeFromCode(v float64) (RemovalType, bool) {
	i := int(v)
	if float64(i) != v || i < 0 || i >= len(removalCodes) {
		return "", false
	}
	return removalCodes[i], true
}

// OffNetworkPolicy decides how an off-network feature treats the cells it
// crosses.
type OffNetworkPolicy string

const (
	PolicyRemoval     OffNetworkPolicy = "removal"
	PolicyPassThrough OffNetworkPolicy = "pass-through"
)

// LandRemoval is the removal assigned to one soil map unit.
type LandRemoval struct {
	MUKEY      int64       `json:"mukey"`
	HydricPct  float64     `json:"hydric_pct"`
	RemovalPct float64     `json:"removal_pct"`
	Type       RemovalType `json:"type"`
	Cells      int         `json:"cells"`
}

// NetworkRemoval is the removal assigned to one stream segment.
type NetworkRemoval struct {
	COMID      int64       `json:"comid"`
	LakeCOMID  int64       `json:"lake_comid,omitempty"`
	RemovalPct float64     `json:"removal_pct"`
	Type       RemovalType `json:"type"`
	Depth      float64     `json:"depth,omitempty"`
	Decay      float64     `json:"decay,omitempty"`
	TOTMA      float64     `json:"totma"`
	QCMS       float64     `json:"qcms"`
}

// LakeRemoval is the removal assigned to one waterbody.
type LakeRemoval struct {
	COMID          int64   `json:"comid"`
	RemovalPct     float64 `json:"removal_pct"`
	HydraulicLoad  float64 `json:"hydraulic_load"` // m/yr
	OutflowQCMS    float64 `json:"outflow_qcms"`
	SurfaceArea    float64 `json:"surface_area"`
	MemberSegments []int64 `json:"member_segments"`
}
