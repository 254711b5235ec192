package store

import (
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// LayerStore defines the persistence operations used by the service.
// Consumers should depend on this interface rather than the concrete *DB type.
type LayerStore interface {
	SavePrepared(p *geodata.Prepared) error
	LoadPrepared() (*geodata.Prepared, error)
	DatasetChecksum() (string, error)
	SaveNetworkRemoval(rows []models.NetworkRemoval) error
	NetworkRemoval(comid int64) (*models.NetworkRemoval, error)
	SaveStaticMapRun(run *Run) (int64, error)
	ListRuns() ([]Run, error)
	RunSamples(runID int64) ([]Sample, error)
	LoadRunRaster(runID int64, name string) (*raster.Raster, error)
	Close() error
}

// Verify *DB satisfies LayerStore at compile time.
var _ LayerStore = (*DB)(nil)
