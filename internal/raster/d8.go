package raster

// D8 direction codes (ESRI convention).
const (
	East      = 1
	SouthEast = 2
	South     = 4
	SouthWest = 8
	West      = 16
	NorthWest = 32
	North     = 64
	NorthEast = 128
)

var d8Offsets = map[int]Cell{
	East:      {Row: 0, Col: 1},
	SouthEast: {Row: 1, Col: 1},
	South:     {Row: 1, Col: 0},
	SouthWest: {Row: 1, Col: -1},
	West:      {Row: 0, Col: -1},
	NorthWest: {Row: -1, Col: -1},
	North:     {Row: -1, Col: 0},
	NorthEast: {Row: -1, Col: 1},
}

// Downslope returns the neighbour of c that a D8 code points to. ok is false
// for sinks, flats and anything that is not one of the eight codes.
func Downslope(c Cell, code float64) (next Cell, ok bool) {
	if IsNoData(code) || code != float64(int(code)) {
		return Cell{}, false
	}
	off, ok := d8Offsets[int(code)]
	if !ok {
		return Cell{}, false
	}
	return Cell{Row: c.Row + off.Row, Col: c.Col + off.Col}, true
}
