package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// Run is a persisted static map generation.
type Run struct {
	ID              int64                     `json:"id"`
	CreatedAt       time.Time                 `json:"created_at"`
	Density         int                       `json:"density"`
	Seed            uint64                    `json:"seed"`
	DatasetChecksum string                    `json:"dataset_checksum"`
	Drawn           int                       `json:"drawn"`
	Used            int                       `json:"used"`
	Excluded        int                       `json:"excluded"`
	Mean            float64                   `json:"mean"`
	StdDev          float64                   `json:"std_dev"`
	Min             float64                   `json:"min"`
	Max             float64                   `json:"max"`
	Duration        time.Duration             `json:"duration"`
	Rasters         map[string]*raster.Raster `json:"-"`
	Samples         []Sample                  `json:"-"`
}

// Sample is one traced start point of a run.
type Sample struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Row     int     `json:"row"`
	Col     int     `json:"col"`
	Removal float64 `json:"removal"`
}

// SaveNetworkRemoval replaces the stored per-segment removal.
func (db *DB) SaveNetworkRemoval(rows []models.NetworkRemoval) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM network_removal`); err != nil {
		return fmt.Errorf("store: clear network removal: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO network_removal (comid, lake_comid, removal_pct, type, depth, decay, totma, qcms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare network removal insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.COMID, r.LakeCOMID, r.RemovalPct, string(r.Type), r.Depth, r.Decay, r.TOTMA, r.QCMS); err != nil {
			return fmt.Errorf("store: insert network removal %d: %w", r.COMID, err)
		}
	}
	return tx.Commit()
}

// NetworkRemoval returns the stored removal for one segment.
func (db *DB) NetworkRemoval(comid int64) (*models.NetworkRemoval, error) {
	var r models.NetworkRemoval
	var typ string
	err := db.conn.QueryRow(`SELECT comid, lake_comid, removal_pct, type, depth, decay, totma, qcms FROM network_removal WHERE comid = ?`, comid).
		Scan(&r.COMID, &r.LakeCOMID, &r.RemovalPct, &typ, &r.Depth, &r.Decay, &r.TOTMA, &r.QCMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: segment %d: %w", comid, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: network removal: %w", err)
	}
	r.Type = models.RemovalType(typ)
	return &r, nil
}

// SaveStaticMapRun stores a run with its rasters and samples and returns the
// new run id.
func (db *DB) SaveStaticMapRun(run *Run) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := tx.Exec(`
		INSERT INTO static_map_runs (created_at, density, seed, dataset_checksum, drawn, used, excluded, mean, std_dev, min, max, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, created, run.Density, int64(run.Seed), run.DatasetChecksum, run.Drawn, run.Used, run.Excluded,
		run.Mean, run.StdDev, run.Min, run.Max, run.Duration.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("store: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: run id: %w", err)
	}
	for name, r := range run.Rasters {
		if _, err := tx.Exec(`INSERT INTO static_map_rasters (run_id, name, data) VALUES (?, ?, ?)`, id, name, encodeRaster(r)); err != nil {
			return 0, fmt.Errorf("store: insert run raster %s: %w", name, err)
		}
	}
	if len(run.Samples) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO sample_points (run_id, idx, x, y, row, col, removal) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("store: prepare sample insert: %w", err)
		}
		defer stmt.Close()
		for i, s := range run.Samples {
			if _, err := stmt.Exec(id, i, s.X, s.Y, s.Row, s.Col, s.Removal); err != nil {
				return 0, fmt.Errorf("store: insert sample %d: %w", i, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit run: %w", err)
	}
	run.ID = id
	return id, nil
}

// ListRuns returns run metadata, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.conn.Query(`
		SELECT id, created_at, density, seed, dataset_checksum, drawn, used, excluded, mean, std_dev, min, max, duration_ms
		FROM static_map_runs ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var seed, ms int64
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Density, &seed, &r.DatasetChecksum, &r.Drawn, &r.Used, &r.Excluded,
			&r.Mean, &r.StdDev, &r.Min, &r.Max, &ms); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRunRaster returns one output raster of a run.
func (db *DB) LoadRunRaster(runID int64, name string) (*raster.Raster, error) {
	var g raster.Grid
	err := db.conn.QueryRow(`SELECT origin_x, origin_y, cell_size, rows, cols, crs FROM grid WHERE id = 1`).
		Scan(&g.OriginX, &g.OriginY, &g.CellSize, &g.Rows, &g.Cols, &g.CRS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: grid: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load grid: %w", err)
	}
	var data []byte
	err = db.conn.QueryRow(`SELECT data FROM static_map_rasters WHERE run_id = ? AND name = ?`, runID, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: run %d raster %s: %w", runID, name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load run raster: %w", err)
	}
	return decodeRaster(g, data)
}

// RunSamples returns the sample points of a run in draw order.
func (db *DB) RunSamples(runID int64) ([]Sample, error) {
	rows, err := db.conn.Query(`SELECT x, y, row, col, removal FROM sample_points WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: run samples: %w", err)
	}
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.X, &s.Y, &s.Row, &s.Col, &s.Removal); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
