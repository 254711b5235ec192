package staticmap

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/USEPA-clone/nsink/internal/raster"
)

// Point is one sampled start location.
type Point struct {
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
	Cell raster.Cell `json:"cell"`
}

type block struct {
	cells []raster.Cell
	quota int
	frac  float64
	order int
}

// stratify draws n points from the eligible cells. The grid is split into
// ceil(sqrt(n))^2 blocks, n is shared between blocks in proportion to their
// eligible cells by largest remainder, and each block draws distinct cells
// with a PCG stream seeded from seed. Each point is jittered inside its cell.
func stratify(g raster.Grid, eligible []bool, n int, seed uint64) []Point {
	total := 0
	for _, e := range eligible {
		if e {
			total++
		}
	}
	n = min(n, total)
	if n <= 0 {
		return nil
	}

	side := int(math.Ceil(math.Sqrt(float64(n))))
	blocks := make([]*block, side*side)
	for i := range blocks {
		blocks[i] = &block{order: i}
	}
	for i, e := range eligible {
		if !e {
			continue
		}
		c := g.CellAt(i)
		bi := c.Row * side / g.Rows
		bj := c.Col * side / g.Cols
		b := blocks[bi*side+bj]
		b.cells = append(b.cells, c)
	}

	assigned := 0
	for _, b := range blocks {
		share := float64(n) * float64(len(b.cells)) / float64(total)
		b.quota = int(math.Floor(share))
		b.frac = share - float64(b.quota)
		assigned += b.quota
	}
	byRemainder := slices.Clone(blocks)
	slices.SortStableFunc(byRemainder, func(a, b *block) int {
		if c := cmp.Compare(b.frac, a.frac); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})
	for _, b := range byRemainder {
		if assigned == n {
			break
		}
		if b.quota < len(b.cells) {
			b.quota++
			assigned++
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	points := make([]Point, 0, n)
	for _, b := range blocks {
		cells := b.cells
		for k := 0; k < b.quota; k++ {
			j := k + rng.IntN(len(cells)-k)
			cells[k], cells[j] = cells[j], cells[k]
			minX, minY, _, _ := g.Bounds(cells[k])
			points = append(points, Point{
				X:    minX + rng.Float64()*g.CellSize,
				Y:    minY + rng.Float64()*g.CellSize,
				Cell: cells[k],
			})
		}
	}
	return points
}
