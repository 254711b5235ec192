package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/USEPA-clone/nsink/internal/raster"
)

// encodeRaster packs cell values as little-endian float64.
func encodeRaster(r *raster.Raster) []byte {
	buf := make([]byte, 8*len(r.Data))
	for i, v := range r.Data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeRaster(g raster.Grid, data []byte) (*raster.Raster, error) {
	if len(data) != 8*g.Len() {
		return nil, fmt.Errorf("store: raster blob has %d bytes, want %d", len(data), 8*g.Len())
	}
	vals := make([]float64, g.Len())
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return raster.FromSlice(g, vals)
}

func encodeGeom(g geom.T) ([]byte, error) {
	b, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("store: encode wkb: %w", err)
	}
	return b, nil
}

func decodeGeom[T geom.T](data []byte) (T, error) {
	var zero T
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return zero, fmt.Errorf("store: decode wkb: %w", err)
	}
	t, ok := g.(T)
	if !ok {
		return zero, fmt.Errorf("store: wkb holds %T, want %T", g, zero)
	}
	return t, nil
}
