package staticmap

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// sample is a successful trace result positioned in map space.
type sample struct {
	x, y, v float64
}

var (
	_ kdtree.Interface  = samples(nil)
	_ kdtree.Comparable = sample{}
)

func (p sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(sample)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p sample) Dims() int { return 2 }

func (p sample) Distance(c kdtree.Comparable) float64 {
	q := c.(sample)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type samples []sample

func (s samples) Index(i int) kdtree.Comparable         { return s[i] }
func (s samples) Len() int                              { return len(s) }
func (s samples) Pivot(d kdtree.Dim) int                { return plane{samples: s, Dim: d}.Pivot() }
func (s samples) Slice(start, end int) kdtree.Interface { return s[start:end] }

type plane struct {
	kdtree.Dim
	samples
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.samples[i].x < p.samples[j].x
	}
	return p.samples[i].y < p.samples[j].y
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.samples = p.samples[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.samples[i], p.samples[j] = p.samples[j], p.samples[i] }

// interpolator estimates values by inverse distance weighting over the k
// nearest samples.
type interpolator struct {
	tree  *kdtree.Tree
	k     int
	power float64
}

func newInterpolator(pts []sample, k int, power float64) *interpolator {
	return &interpolator{
		tree:  kdtree.New(samples(pts), false),
		k:     max(1, min(k, len(pts))),
		power: power,
	}
}

// At returns the interpolated value at (x, y). A sample at zero distance is
// returned exactly.
func (ip *interpolator) At(x, y float64) float64 {
	keep := kdtree.NewNKeeper(ip.k)
	ip.tree.NearestSet(keep, sample{x: x, y: y})
	var num, den, exact float64
	var hits int
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		s := cd.Comparable.(sample)
		if cd.Dist == 0 {
			exact += s.v
			hits++
			continue
		}
		w := 1 / math.Pow(math.Sqrt(cd.Dist), ip.power)
		num += w * s.v
		den += w
	}
	if hits > 0 {
		return exact / float64(hits)
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
