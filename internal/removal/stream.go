package removal

import "math"

// Hydraulic geometry and first-order decay coefficients.
const (
	depthCoef   = 0.2612
	depthExp    = 0.3966
	decayCoef   = 0.0513
	decayExp    = -1.319
	secondsYear = 31536000.
)

// orderDepth is the mean depth (m) used when a segment has no flow estimate.
var orderDepth = []float64{0.12, 0.12, 0.2, 0.3, 0.45, 0.7, 1.0, 1.5, 2.2, 3.2, 4.5}

// StreamDepth returns the mean depth in metres for a segment with flow q
// (m3/s) and Strahler order.
func StreamDepth(q float64, order int) float64 {
	if q > 0 {
		return depthCoef * math.Pow(q, depthExp)
	}
	order = min(max(order, 0), len(orderDepth)-1)
	return orderDepth[order]
}

// DecayRate returns the first-order removal rate (1/day) for depth.
func DecayRate(depth float64) float64 {
	return decayCoef * math.Pow(depth, decayExp)
}

// StreamRemoval returns the percent of nitrogen removed over totma days.
func StreamRemoval(totma, q float64, order int) (pct, depth, k float64) {
	depth = StreamDepth(q, order)
	k = DecayRate(depth)
	if !(totma > 0) {
		return 0, depth, k
	}
	return clamp(100 * (1 - math.Exp(-k*totma))), depth, k
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
