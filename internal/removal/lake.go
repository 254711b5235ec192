package removal

import "math"

// HydraulicLoad returns the areal hydraulic load (m/yr) for outflow q (m3/s)
// across area (m2).
func HydraulicLoad(q, area float64) float64 {
	return q * secondsYear / area
}

// LakeRemoval returns the percent of nitrogen retained by a lake with outflow
// q and surface area. No throughflow means full retention.
func LakeRemoval(q, area float64) (pct, hl float64) {
	if !(q > 0) {
		return 100, 0
	}
	hl = HydraulicLoad(q, area)
	return clamp(79.24 - 33.26*math.Log10(hl)), hl
}
