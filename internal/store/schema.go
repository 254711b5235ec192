// Package store persists prepared watershed layers and model results in SQLite.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS grid (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	huc       TEXT NOT NULL DEFAULT '',
	origin_x  REAL NOT NULL,
	origin_y  REAL NOT NULL,
	cell_size REAL NOT NULL,
	rows      INTEGER NOT NULL,
	cols      INTEGER NOT NULL,
	crs       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rasters (
	name TEXT PRIMARY KEY,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS boundary (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	geom BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS streams (
	comid        INTEGER PRIMARY KEY,
	geom         BLOB NOT NULL,
	from_node    INTEGER NOT NULL,
	to_node      INTEGER NOT NULL,
	stream_order INTEGER NOT NULL DEFAULT 0,
	lake_comid   INTEGER NOT NULL DEFAULT 0,
	ftype        TEXT NOT NULL DEFAULT '',
	off_network  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_streams_from ON streams(from_node);
CREATE INDEX IF NOT EXISTS idx_streams_lake ON streams(lake_comid);

CREATE TABLE IF NOT EXISTS flow (
	comid INTEGER PRIMARY KEY,
	totma REAL NOT NULL,
	qcms  REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS lakes (
	comid       INTEGER PRIMARY KEY,
	geom        BLOB NOT NULL,
	off_network INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lake_morphology (
	comid      INTEGER PRIMARY KEY,
	mean_depth REAL NOT NULL DEFAULT 0,
	volume     REAL NOT NULL DEFAULT 0,
	max_depth  REAL NOT NULL DEFAULT 0,
	area       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS soils (
	mukey      INTEGER PRIMARY KEY,
	geom       BLOB NOT NULL,
	hydric_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS network_removal (
	comid       INTEGER PRIMARY KEY,
	lake_comid  INTEGER NOT NULL DEFAULT 0,
	removal_pct REAL NOT NULL,
	type        TEXT NOT NULL,
	depth       REAL NOT NULL DEFAULT 0,
	decay       REAL NOT NULL DEFAULT 0,
	totma       REAL NOT NULL DEFAULT 0,
	qcms        REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS static_map_runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	density          INTEGER NOT NULL,
	seed             INTEGER NOT NULL,
	dataset_checksum TEXT NOT NULL DEFAULT '',
	drawn            INTEGER NOT NULL DEFAULT 0,
	used             INTEGER NOT NULL DEFAULT 0,
	excluded         INTEGER NOT NULL DEFAULT 0,
	mean             REAL NOT NULL DEFAULT 0,
	std_dev          REAL NOT NULL DEFAULT 0,
	min              REAL NOT NULL DEFAULT 0,
	max              REAL NOT NULL DEFAULT 0,
	duration_ms      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS static_map_rasters (
	run_id INTEGER NOT NULL REFERENCES static_map_runs(id) ON DELETE CASCADE,
	name   TEXT NOT NULL,
	data   BLOB NOT NULL,
	PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS sample_points (
	run_id  INTEGER NOT NULL REFERENCES static_map_runs(id) ON DELETE CASCADE,
	idx     INTEGER NOT NULL,
	x       REAL NOT NULL,
	y       REAL NOT NULL,
	row     INTEGER NOT NULL,
	col     INTEGER NOT NULL,
	removal REAL NOT NULL,
	PRIMARY KEY (run_id, idx)
);
`

// DB wraps a sql.DB with layer and result operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
