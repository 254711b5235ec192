package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/twpayne/go-geom"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/checksum"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// Raster layer names in the rasters table.
const (
	LayerFlowDir    = "fdr"
	LayerLandCover  = "landcover"
	LayerImpervious = "impervious"
)

var layerTables = []string{"grid", "rasters", "boundary", "streams", "flow", "lakes", "lake_morphology", "soils", "network_removal"}

// SavePrepared replaces every stored layer with p in one transaction.
// Previously saved network removal is cleared because it derives from the
// layers.
func (db *DB) SavePrepared(p *geodata.Prepared) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, t := range layerTables {
		if _, err := tx.Exec(`DELETE FROM ` + t); err != nil {
			return fmt.Errorf("store: clear %s: %w", t, err)
		}
	}

	g := p.Grid
	if _, err := tx.Exec(`INSERT INTO grid (id, huc, origin_x, origin_y, cell_size, rows, cols, crs) VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		p.HUC, g.OriginX, g.OriginY, g.CellSize, g.Rows, g.Cols, g.CRS); err != nil {
		return fmt.Errorf("store: insert grid: %w", err)
	}
	for name, r := range map[string]*raster.Raster{LayerFlowDir: p.FlowDir, LayerLandCover: p.LandCover, LayerImpervious: p.Impervious} {
		if r == nil {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO rasters (name, data) VALUES (?, ?)`, name, encodeRaster(r)); err != nil {
			return fmt.Errorf("store: insert raster %s: %w", name, err)
		}
	}
	if p.Boundary != nil {
		b, err := encodeGeom(p.Boundary)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO boundary (id, geom) VALUES (1, ?)`, b); err != nil {
			return fmt.Errorf("store: insert boundary: %w", err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO streams (comid, geom, from_node, to_node, stream_order, lake_comid, ftype, off_network) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare stream insert: %w", err)
	}
	defer stmt.Close()
	for _, s := range p.Streams {
		b, err := encodeGeom(s.Geometry)
		if err != nil {
			return fmt.Errorf("store: stream %d: %w", s.COMID, err)
		}
		if _, err := stmt.Exec(s.COMID, b, s.FromNode, s.ToNode, s.StreamOrder, s.LakeCOMID, string(s.FType), s.OffNetwork); err != nil {
			return fmt.Errorf("store: insert stream %d: %w", s.COMID, err)
		}
	}
	for _, f := range p.Flow {
		if _, err := tx.Exec(`INSERT INTO flow (comid, totma, qcms) VALUES (?, ?, ?)`, f.COMID, f.TOTMA, f.QCMS); err != nil {
			return fmt.Errorf("store: insert flow %d: %w", f.COMID, err)
		}
	}
	for _, l := range p.Lakes {
		b, err := encodeGeom(l.Geometry)
		if err != nil {
			return fmt.Errorf("store: lake %d: %w", l.COMID, err)
		}
		if _, err := tx.Exec(`INSERT INTO lakes (comid, geom, off_network) VALUES (?, ?, ?)`, l.COMID, b, l.OffNetwork); err != nil {
			return fmt.Errorf("store: insert lake %d: %w", l.COMID, err)
		}
	}
	for _, m := range p.Morphology {
		if _, err := tx.Exec(`INSERT INTO lake_morphology (comid, mean_depth, volume, max_depth, area) VALUES (?, ?, ?, ?, ?)`,
			m.COMID, m.MeanDepth, m.Volume, m.MaxDepth, m.Area); err != nil {
			return fmt.Errorf("store: insert morphology %d: %w", m.COMID, err)
		}
	}
	for _, u := range p.Soils {
		b, err := encodeGeom(u.Geometry)
		if err != nil {
			return fmt.Errorf("store: soil unit %d: %w", u.MUKEY, err)
		}
		if _, err := tx.Exec(`INSERT INTO soils (mukey, geom, hydric_pct) VALUES (?, ?, ?)`, u.MUKEY, b, u.HydricPct); err != nil {
			return fmt.Errorf("store: insert soil unit %d: %w", u.MUKEY, err)
		}
	}
	return tx.Commit()
}

// LoadPrepared reads every layer. It returns ErrNotFound when no dataset has
// been saved.
func (db *DB) LoadPrepared() (*geodata.Prepared, error) {
	p := &geodata.Prepared{
		Flow:       make(map[int64]models.FlowRecord),
		Morphology: make(map[int64]models.LakeMorphology),
	}
	err := db.conn.QueryRow(`SELECT huc, origin_x, origin_y, cell_size, rows, cols, crs FROM grid WHERE id = 1`).
		Scan(&p.HUC, &p.Grid.OriginX, &p.Grid.OriginY, &p.Grid.CellSize, &p.Grid.Rows, &p.Grid.Cols, &p.Grid.CRS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: dataset: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load grid: %w", err)
	}

	if err := db.loadRasters(p); err != nil {
		return nil, err
	}

	var b []byte
	switch err := db.conn.QueryRow(`SELECT geom FROM boundary WHERE id = 1`).Scan(&b); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("store: load boundary: %w", err)
	default:
		if p.Boundary, err = decodeGeom[*geom.Polygon](b); err != nil {
			return nil, err
		}
	}

	if err := db.loadStreams(p); err != nil {
		return nil, err
	}
	if err := db.loadLakes(p); err != nil {
		return nil, err
	}
	if err := db.loadSoils(p); err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`SELECT comid, totma, qcms FROM flow`)
	if err != nil {
		return nil, fmt.Errorf("store: load flow: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f models.FlowRecord
		if err := rows.Scan(&f.COMID, &f.TOTMA, &f.QCMS); err != nil {
			return nil, err
		}
		p.Flow[f.COMID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := db.conn.Query(`SELECT comid, mean_depth, volume, max_depth, area FROM lake_morphology`)
	if err != nil {
		return nil, fmt.Errorf("store: load morphology: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m models.LakeMorphology
		if err := mrows.Scan(&m.COMID, &m.MeanDepth, &m.Volume, &m.MaxDepth, &m.Area); err != nil {
			return nil, err
		}
		p.Morphology[m.COMID] = m
	}
	return p, mrows.Err()
}

func (db *DB) loadRasters(p *geodata.Prepared) error {
	rows, err := db.conn.Query(`SELECT name, data FROM rasters`)
	if err != nil {
		return fmt.Errorf("store: load rasters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return err
		}
		r, err := decodeRaster(p.Grid, data)
		if err != nil {
			return fmt.Errorf("store: raster %s: %w", name, err)
		}
		switch name {
		case LayerFlowDir:
			p.FlowDir = r
		case LayerLandCover:
			p.LandCover = r
		case LayerImpervious:
			p.Impervious = r
		}
	}
	return rows.Err()
}

func (db *DB) loadStreams(p *geodata.Prepared) error {
	rows, err := db.conn.Query(`SELECT comid, geom, from_node, to_node, stream_order, lake_comid, ftype, off_network FROM streams ORDER BY comid`)
	if err != nil {
		return fmt.Errorf("store: load streams: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s models.StreamSegment
		var b []byte
		var ftype string
		if err := rows.Scan(&s.COMID, &b, &s.FromNode, &s.ToNode, &s.StreamOrder, &s.LakeCOMID, &ftype, &s.OffNetwork); err != nil {
			return err
		}
		s.FType = models.FType(ftype)
		if s.Geometry, err = decodeGeom[*geom.LineString](b); err != nil {
			return fmt.Errorf("store: stream %d: %w", s.COMID, err)
		}
		p.Streams = append(p.Streams, s)
	}
	return rows.Err()
}

func (db *DB) loadLakes(p *geodata.Prepared) error {
	rows, err := db.conn.Query(`SELECT comid, geom, off_network FROM lakes ORDER BY comid`)
	if err != nil {
		return fmt.Errorf("store: load lakes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l models.Lake
		var b []byte
		if err := rows.Scan(&l.COMID, &b, &l.OffNetwork); err != nil {
			return err
		}
		if l.Geometry, err = decodeGeom[*geom.Polygon](b); err != nil {
			return fmt.Errorf("store: lake %d: %w", l.COMID, err)
		}
		p.Lakes = append(p.Lakes, l)
	}
	return rows.Err()
}

func (db *DB) loadSoils(p *geodata.Prepared) error {
	rows, err := db.conn.Query(`SELECT mukey, geom, hydric_pct FROM soils ORDER BY mukey`)
	if err != nil {
		return fmt.Errorf("store: load soils: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u models.HydricSoilUnit
		var b []byte
		if err := rows.Scan(&u.MUKEY, &b, &u.HydricPct); err != nil {
			return err
		}
		if u.Geometry, err = decodeGeom[*geom.MultiPolygon](b); err != nil {
			return fmt.Errorf("store: soil unit %d: %w", u.MUKEY, err)
		}
		p.Soils = append(p.Soils, u)
	}
	return rows.Err()
}

var checksumQueries = []string{
	`SELECT huc, origin_x, origin_y, cell_size, rows, cols, crs FROM grid`,
	`SELECT name, data FROM rasters ORDER BY name`,
	`SELECT geom FROM boundary`,
	`SELECT comid, geom, from_node, to_node, stream_order, lake_comid, ftype, off_network FROM streams ORDER BY comid`,
	`SELECT comid, totma, qcms FROM flow ORDER BY comid`,
	`SELECT comid, geom, off_network FROM lakes ORDER BY comid`,
	`SELECT comid, mean_depth, volume, max_depth, area FROM lake_morphology ORDER BY comid`,
	`SELECT mukey, geom, hydric_pct FROM soils ORDER BY mukey`,
}

// DatasetChecksum returns a digest of the stored input layers. Results tables
// are excluded, so saving a run does not change it.
func (db *DB) DatasetChecksum() (string, error) {
	d := checksum.New()
	for _, q := range checksumQueries {
		if err := digestRows(db.conn, q, d); err != nil {
			return "", err
		}
		d.Write([]byte{'\n'})
	}
	return d.String(), nil
}

func digestRows(conn *sql.DB, query string, w io.Writer) error {
	rows, err := conn.Query(query)
	if err != nil {
		return fmt.Errorf("store: checksum: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("store: checksum: %w", err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("store: checksum scan: %w", err)
		}
		for _, v := range vals {
			if b, ok := v.([]byte); ok {
				fmt.Fprintf(w, "%d:", len(b))
				w.Write(b)
			} else {
				fmt.Fprintf(w, "%v", v)
			}
			w.Write([]byte{'|'})
		}
	}
	return rows.Err()
}
