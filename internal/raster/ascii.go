package raster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadASCII decodes an ESRI ASCII grid. Cells equal to the file's
// NODATA_value become NoData.
func ReadASCII(r io.Reader, crs string) (*Raster, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<28)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64)
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("raster: ascii header %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("raster: ascii header %q: %w", key, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("raster: read ascii: %w", err)
	}

	g := Grid{
		Cols:     int(header["ncols"]),
		Rows:     int(header["nrows"]),
		CellSize: header["cellsize"],
		CRS:      crs,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	x, xok := header["xllcorner"]
	y, yok := header["yllcorner"]
	if !xok || !yok {
		xc, xcok := header["xllcenter"]
		yc, ycok := header["yllcenter"]
		if !xcok || !ycok {
			return nil, fmt.Errorf("raster: ascii header missing lower-left corner")
		}
		x, y = xc-g.CellSize/2, yc-g.CellSize/2
	}
	g.OriginX = x
	g.OriginY = y + float64(g.Rows)*g.CellSize
	nodata, hasNoData := header["nodata_value"]

	out := New(g)
	i := 0
	parse := func(tok string) error {
		if i >= len(out.Data) {
			return fmt.Errorf("raster: ascii has more than %d values", len(out.Data))
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("raster: ascii value %d: %w", i, err)
		}
		if !hasNoData || v != nodata {
			out.Data[i] = v
		}
		i++
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("raster: read ascii: %w", err)
	}
	if i != len(out.Data) {
		return nil, fmt.Errorf("raster: ascii has %d values, want %d", i, len(out.Data))
	}
	return out, nil
}

// WriteASCII encodes r as an ESRI ASCII grid.
func WriteASCII(w io.Writer, r *Raster) error {
	g := r.Grid
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.Cols, g.Rows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", ftoa(g.OriginX), ftoa(g.OriginY-float64(g.Rows)*g.CellSize))
	fmt.Fprintf(bw, "cellsize %s\nNODATA_value %s\n", ftoa(g.CellSize), ftoa(NoData))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := r.Data[g.Index(Cell{Row: row, Col: col})]
			if IsNoData(v) {
				v = NoData
			}
			bw.WriteString(ftoa(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
